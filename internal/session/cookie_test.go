package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestSetCookieSecureFollowsScheme(t *testing.T) {
	tests := []struct {
		scheme string
		secure bool
	}{
		{"https", true},
		{"http", false},
	}
	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			w := httptest.NewRecorder()
			SetCookie(w, "tok", time.Now().Add(time.Hour), OptionsFor(tt.scheme))

			header := w.Header().Get("Set-Cookie")
			require.True(t, strings.HasPrefix(header, CookieName+"=tok"), header)
			assert.Equal(t, tt.secure, strings.Contains(header, "; Secure"), header)
			assert.Contains(t, header, "; HttpOnly")
			assert.Contains(t, header, "; Path=/")
		})
	}
}

func TestClearCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCookie(w, CookieOptions{})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	assert.Equal(t, "abc", TokenFromRequest(r))
}
