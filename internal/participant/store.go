package participant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("participant not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrAlreadyLinked = errors.New("elsewhere account already linked")
)

// Store persists participants. Finders return ErrNotFound when nothing
// matches; an empty credential never matches.
type Store interface {
	Create(ctx context.Context, np NewParticipant) (*Participant, error)

	FindByUsernameLower(ctx context.Context, usernameLower string) (*Participant, error)
	FindBySessionToken(ctx context.Context, token string) (*Participant, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*Participant, error)
	FindByElsewhere(ctx context.Context, provider, providerUserID string) (*Participant, error)

	SetSession(ctx context.Context, id, token string, expires time.Time) error
	SetSessionExpires(ctx context.Context, id string, expires time.Time) error
	ClearSession(ctx context.Context, id string) error

	SetAPIKey(ctx context.Context, id, apiKey string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetSuspicion(ctx context.Context, id string, s Suspicion) error
	LinkElsewhere(ctx context.Context, id, provider, providerUserID string) error

	// Delete removes a participant and every index pointing at it.
	Delete(ctx context.Context, id string) error
}

// RecreateAPIKey issues a fresh API key, invalidating the previous one.
func RecreateAPIKey(ctx context.Context, s Store, p *Participant) (string, error) {
	key := uuid.NewString()
	if err := s.SetAPIKey(ctx, p.ID, key); err != nil {
		return "", fmt.Errorf("participant: recreate api key: %w", err)
	}
	p.APIKey = key
	return key, nil
}

func validateNew(np NewParticipant) error {
	if np.Username == "" {
		return errors.New("participant: username is required")
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
)
