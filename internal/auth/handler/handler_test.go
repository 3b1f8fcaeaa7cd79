package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"participant-auth/internal/auth"
	"participant-auth/internal/auth/credentials"
	"participant-auth/internal/auth/elsewhere"
	"participant-auth/internal/auth/provider"
	"participant-auth/internal/logger"
	"participant-auth/internal/middleware"
	"participant-auth/internal/participant"
	"participant-auth/internal/participant/participanttest"
	"participant-auth/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Disable()
}

// fakeProvider accepts the code "good" and rejects everything else.
type fakeProvider struct {
	identity *auth.Identity
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AuthCodeURL(state string, codeChallenge string) string {
	return "https://idp.example.com/auth?state=" + state + "&code_challenge=" + codeChallenge
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string, _ string) (*auth.Identity, error) {
	if code != "good" {
		return nil, errors.New("bad code")
	}
	return p.identity, nil
}

type testServer struct {
	store  *participant.RedisStore
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := participanttest.NewStore(t)
	resolver := auth.NewResolver(store, auth.Options{CanonicalScheme: "http"})
	mw := middleware.NewAuthMiddleware(resolver)

	fake := &fakeProvider{identity: &auth.Identity{
		Provider:       "fake",
		ProviderUserID: "sub-42",
		Email:          "carol@example.com",
		EmailVerified:  true,
	}}

	h := NewHandler(
		provider.NewRegistry(fake),
		resolver,
		elsewhere.NewStoreResolver(store),
		store,
		false,
	)

	r := gin.New()
	r.Use(middleware.GinAuthenticate(mw))
	h.RegisterRoutes(r, mw)

	return &testServer{store: store, router: r}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *testServer) register(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	w := s.do(t, http.MethodPost, "/auth/register",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	c := cookieNamed(w, session.CookieName)
	require.NotNil(t, c)
	return c
}

func TestRegisterThenMe(t *testing.T) {
	s := newTestServer(t)
	cookie := s.register(t, "Alice", "correct horse")

	assert.False(t, cookie.Secure)

	w := s.do(t, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"Alice","admin":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/auth/register", `{"username":"alice","password":"other password"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "correct horse")

	p, err := s.store.FindByUsernameLower(context.Background(), "alice")
	require.NoError(t, err)
	assert.NoError(t, credentials.VerifyPassword(p.PasswordHash, "correct horse"))
}

func TestRegisterRejectsPasswordOutsideBounds(t *testing.T) {
	s := newTestServer(t)

	for _, password := range []string{"short", strings.Repeat("x", credentials.MaxPasswordLength+1)} {
		w := s.do(t, http.MethodPost, "/auth/register", `{"username":"alice","password":"`+password+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	// Nothing is left behind by a rejected registration.
	_, err := s.store.FindByUsernameLower(context.Background(), "alice")
	assert.ErrorIs(t, err, participant.ErrNotFound)
}

func TestSignIn(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "correct horse")

	w := s.do(t, http.MethodPost, "/auth/signin", `{"username":"ALICE","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, cookieNamed(w, session.CookieName))

	w = s.do(t, http.MethodPost, "/auth/signin", `{"username":"alice","password":"wrong horse"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signin", `{"username":"nobody","password":"correct horse"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signin", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignOut(t *testing.T) {
	s := newTestServer(t)
	cookie := s.register(t, "alice", "correct horse")

	w := s.do(t, http.MethodPost, "/auth/signout", "", cookie)
	require.Equal(t, http.StatusNoContent, w.Code)

	cleared := cookieNamed(w, session.CookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w = s.do(t, http.MethodGet, "/api/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecreateAPIKey(t *testing.T) {
	s := newTestServer(t)
	cookie := s.register(t, "alice", "correct horse")

	w := s.do(t, http.MethodPost, "/api/api-key", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.APIKey)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.SetBasicAuth("alice", body.APIKey)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"alice","admin":false}`, w.Body.String())
}

func TestSetPassword(t *testing.T) {
	s := newTestServer(t)
	cookie := s.register(t, "alice", "correct horse")

	w := s.do(t, http.MethodPut, "/api/password", `{"password":"battery staple"}`, cookie)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signin", `{"username":"alice","password":"battery staple"}`)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := cookieNamed(w, session.CookieName)
	require.NotNil(t, fresh)

	// Signing in again rotates the single session token.
	w = s.do(t, http.MethodGet, "/api/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/password", `{"password":"tiny"}`, fresh)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/password", `{"password":"`+strings.Repeat("x", credentials.MaxPasswordLength+1)+`"}`, fresh)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/password", `{"password":"battery staple"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminSetsSuspicion(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	participanttest.Make(t, s.store, participant.NewParticipant{Username: "root", IsAdmin: true})
	root, err := s.store.FindByUsernameLower(ctx, "root")
	require.NoError(t, err)
	hash := mustHash(t, "root password")
	require.NoError(t, s.store.SetPasswordHash(ctx, root.ID, hash))

	w := s.do(t, http.MethodPost, "/auth/signin", `{"username":"root","password":"root password"}`)
	require.Equal(t, http.StatusOK, w.Code)
	adminCookie := cookieNamed(w, session.CookieName)

	aliceCookie := s.register(t, "alice", "correct horse")

	// Non-admins are refused.
	w = s.do(t, http.MethodPut, "/admin/participants/root/suspicion", `{"suspicion":"blacklisted"}`, aliceCookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/admin/participants/nobody/suspicion", `{"suspicion":"blacklisted"}`, adminCookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/admin/participants/alice/suspicion", `{"suspicion":"maybe"}`, adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/admin/participants/ALICE/suspicion", `{"suspicion":"blacklisted"}`, adminCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"alice","suspicion":"blacklisted"}`, w.Body.String())

	// The blacklisted participant loses its session and cannot sign in.
	w = s.do(t, http.MethodGet, "/api/me", "", aliceCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signin", `{"username":"alice","password":"correct horse"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// startOAuth begins a login against the fake provider and returns the
// callback path along with the cookies the browser would carry to it.
func (s *testServer) startOAuth(t *testing.T) (string, []*http.Cookie) {
	t.Helper()

	w := s.do(t, http.MethodGet, "/oauth/login/fake", "")
	require.Equal(t, http.StatusFound, w.Code)

	stateCookie := cookieNamed(w, stateCookieName)
	pkceCookie := cookieNamed(w, pkceCookieName)
	require.NotNil(t, stateCookie)
	require.NotNil(t, pkceCookie)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, stateCookie.Value, location.Query().Get("state"))
	assert.NotEqual(t, pkceCookie.Value, location.Query().Get("code_challenge"))

	callback := "/oauth/callback/fake?code=good&state=" + url.QueryEscape(stateCookie.Value)
	return callback, []*http.Cookie{stateCookie, pkceCookie}
}

func TestOAuthFlow(t *testing.T) {
	s := newTestServer(t)

	callback, cookies := s.startOAuth(t)
	w := s.do(t, http.MethodGet, callback, "", cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionCookie := cookieNamed(w, session.CookieName)
	require.NotNil(t, sessionCookie)

	for _, name := range []string{stateCookieName, pkceCookieName} {
		expired := cookieNamed(w, name)
		require.NotNil(t, expired, name)
		assert.Empty(t, expired.Value)
		assert.Equal(t, -1, expired.MaxAge)
	}

	w = s.do(t, http.MethodGet, "/api/me", "", sessionCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"carol","admin":false}`, w.Body.String())

	// A second sign-in lands on the same participant.
	callback, cookies = s.startOAuth(t)
	w = s.do(t, http.MethodGet, callback, "", cookies...)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "carol", body.Username)
}

func TestOAuthCallbackRejections(t *testing.T) {
	s := newTestServer(t)

	state := &http.Cookie{Name: stateCookieName, Value: "s1"}
	pkce := &http.Cookie{Name: pkceCookieName, Value: "v1"}

	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		want    int
	}{
		{"unknown provider", "/oauth/callback/github?code=good&state=s1", []*http.Cookie{state, pkce}, http.StatusBadRequest},
		{"state mismatch", "/oauth/callback/fake?code=good&state=s2", []*http.Cookie{state, pkce}, http.StatusUnauthorized},
		{"provider error", "/oauth/callback/fake?error=access_denied&state=s1", []*http.Cookie{state, pkce}, http.StatusUnauthorized},
		{"missing code", "/oauth/callback/fake?state=s1", []*http.Cookie{state, pkce}, http.StatusBadRequest},
		{"missing verifier", "/oauth/callback/fake?code=good&state=s1", []*http.Cookie{state}, http.StatusUnauthorized},
		{"bad code", "/oauth/callback/fake?code=bad&state=s1", []*http.Cookie{state, pkce}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, "", tt.cookies...)
			assert.Equal(t, tt.want, w.Code)
			assert.Nil(t, cookieNamed(w, session.CookieName))
		})
	}
}

func TestOAuthCallbackExpiresStateOnFailure(t *testing.T) {
	s := newTestServer(t)

	state := &http.Cookie{Name: stateCookieName, Value: "s1"}
	pkce := &http.Cookie{Name: pkceCookieName, Value: "v1"}

	w := s.do(t, http.MethodGet, "/oauth/callback/fake?code=bad&state=s1", "", state, pkce)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	for _, name := range []string{stateCookieName, pkceCookieName} {
		expired := cookieNamed(w, name)
		require.NotNil(t, expired, name)
		assert.Equal(t, -1, expired.MaxAge)
	}
}
