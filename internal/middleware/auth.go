package middleware

import (
	"context"
	"net/http"

	"participant-auth/internal/auth"
	"participant-auth/internal/logger"
	"participant-auth/internal/participant"
	"participant-auth/internal/session"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u *auth.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the request's User. Requests that never passed
// through Authenticate are anonymous.
func UserFromContext(ctx context.Context) *auth.User {
	u, ok := ctx.Value(userKey).(*auth.User)
	if !ok || u == nil {
		return auth.Anonymous()
	}
	return u
}

type AuthMiddleware struct {
	Resolver *auth.Resolver
}

func NewAuthMiddleware(resolver *auth.Resolver) *AuthMiddleware {
	return &AuthMiddleware{Resolver: resolver}
}

// Authenticate resolves the request's User and stores it in the context.
// Every request passes through; anonymity is decided downstream.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, viaSession, err := a.resolve(r)
		if err != nil {
			logger.Error("user resolution failed", map[string]any{
				"error": err.Error(),
				"path":  r.URL.Path,
			})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if viaSession {
			if err := a.Resolver.KeepSignedIn(r.Context(), w, user); err != nil {
				logger.Warn("session refresh failed", map[string]any{
					"error": err.Error(),
				})
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// resolve tries the session cookie first, then HTTP Basic credentials
// carrying an API key as the password.
func (a *AuthMiddleware) resolve(r *http.Request) (*auth.User, bool, error) {
	ctx := r.Context()

	if token := session.TokenFromRequest(r); token != "" {
		user, err := a.Resolver.FromSessionToken(ctx, token)
		if err != nil {
			return nil, false, err
		}
		if !user.Anon() {
			return user, true, nil
		}
	}

	username, apiKey, ok := r.BasicAuth()
	if !ok {
		return auth.Anonymous(), false, nil
	}

	user, err := a.Resolver.FromAPIKey(ctx, apiKey)
	if err != nil {
		return nil, false, err
	}
	if user.Anon() || participant.Canonical(username) != user.Participant().UsernameLower {
		return auth.Anonymous(), false, nil
	}
	return user, false, nil
}

// RequireAuth rejects anonymous users with 401.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()).Anon() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous users with 401 and non-admins with 403.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		switch {
		case user.Anon():
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case !user.Admin():
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
