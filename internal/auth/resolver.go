package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"participant-auth/internal/logger"
	"participant-auth/internal/participant"
	"participant-auth/internal/session"
)

const (
	DefaultSessionTimeout = 6 * time.Hour
	DefaultSessionRefresh = time.Hour
)

var ErrAnonymous = errors.New("auth: user is anonymous")

type Options struct {
	// CanonicalScheme is "https" or "http". Session cookies are Secure
	// only under https.
	CanonicalScheme string

	SessionTimeout time.Duration
	SessionRefresh time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Resolver maps credentials to Users and manages session lifecycle.
// Invalid, missing, or expired credentials resolve to an anonymous User;
// only store failures are reported as errors.
type Resolver struct {
	store   participant.Store
	cookies session.CookieOptions
	timeout time.Duration
	refresh time.Duration
	now     func() time.Time
}

func NewResolver(store participant.Store, opts Options) *Resolver {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.SessionRefresh <= 0 {
		opts.SessionRefresh = DefaultSessionRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Resolver{
		store:   store,
		cookies: session.OptionsFor(opts.CanonicalScheme),
		timeout: opts.SessionTimeout,
		refresh: opts.SessionRefresh,
		now:     opts.Now,
	}
}

// SessionTimeout is how long a fresh or refreshed session lasts.
func (r *Resolver) SessionTimeout() time.Duration {
	return r.timeout
}

// SessionRefresh is how much a session must age before KeepSignedIn
// extends it.
func (r *Resolver) SessionRefresh() time.Duration {
	return r.refresh
}

func (r *Resolver) FromUsername(ctx context.Context, name string) (*User, error) {
	return r.resolve(r.store.FindByUsernameLower(ctx, participant.Canonical(name)))
}

func (r *Resolver) FromSessionToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return Anonymous(), nil
	}

	u, err := r.resolve(r.store.FindBySessionToken(ctx, token))
	if err != nil || u.participant == nil {
		return u, err
	}

	if !r.now().Before(u.participant.SessionExpires) {
		return Anonymous(), nil
	}
	return u, nil
}

func (r *Resolver) FromAPIKey(ctx context.Context, apiKey string) (*User, error) {
	if apiKey == "" {
		return Anonymous(), nil
	}
	return r.resolve(r.store.FindByAPIKey(ctx, apiKey))
}

func (r *Resolver) resolve(p *participant.Participant, err error) (*User, error) {
	if errors.Is(err, participant.ErrNotFound) {
		return Anonymous(), nil
	}
	if err != nil {
		return nil, err
	}
	return known(p), nil
}

// SignIn starts a new session for u and writes the session cookie.
func (r *Resolver) SignIn(ctx context.Context, w http.ResponseWriter, u *User) error {
	if u.Anon() {
		return ErrAnonymous
	}

	token, err := session.NewToken()
	if err != nil {
		return err
	}
	expires := r.now().Add(r.timeout)

	p := u.participant
	if err := r.store.SetSession(ctx, p.ID, token, expires); err != nil {
		return fmt.Errorf("auth: sign in: %w", err)
	}
	p.SessionToken = token
	p.SessionExpires = expires

	session.SetCookie(w, token, expires, r.cookies)

	logger.Info("participant signed in", map[string]any{
		"participant_id": p.ID,
	})

	return nil
}

// SignOut ends u's session and expires the cookie. Afterwards u is anonymous.
func (r *Resolver) SignOut(ctx context.Context, w http.ResponseWriter, u *User) error {
	if p := u.participant; p != nil {
		if err := r.store.ClearSession(ctx, p.ID); err != nil {
			return fmt.Errorf("auth: sign out: %w", err)
		}
		p.SessionToken = ""
		p.SessionExpires = time.Time{}

		logger.Info("participant signed out", map[string]any{
			"participant_id": p.ID,
		})
	}

	session.ClearCookie(w, r.cookies)
	u.participant = nil

	return nil
}

// KeepSignedIn extends u's session once it has aged by a refresh window.
// Fresher sessions are left alone and no cookie is written.
func (r *Resolver) KeepSignedIn(ctx context.Context, w http.ResponseWriter, u *User) error {
	if u.Anon() || u.participant.SessionToken == "" {
		return nil
	}

	p := u.participant
	newExpiry := r.now().Add(r.timeout)
	if newExpiry.Sub(p.SessionExpires) <= r.refresh {
		return nil
	}

	if err := r.store.SetSessionExpires(ctx, p.ID, newExpiry); err != nil {
		return fmt.Errorf("auth: keep signed in: %w", err)
	}
	p.SessionExpires = newExpiry

	session.SetCookie(w, p.SessionToken, newExpiry, r.cookies)

	logger.Debug("session refreshed", map[string]any{
		"participant_id": p.ID,
	})

	return nil
}
