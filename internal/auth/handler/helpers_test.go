package handler

import (
	"testing"

	"participant-auth/internal/auth/credentials"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := credentials.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}
