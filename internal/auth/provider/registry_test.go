package provider

import (
	"context"
	"testing"

	"participant-auth/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider string

func (n namedProvider) Name() string { return string(n) }
func (n namedProvider) AuthCodeURL(string, string) string { return "" }
func (n namedProvider) ExchangeCode(context.Context, string, string) (*auth.Identity, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedProvider("keycloak"), namedProvider("google"))

	p, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("github")
	assert.Error(t, err)

	assert.Equal(t, []string{"google", "keycloak"}, r.Names())
}
