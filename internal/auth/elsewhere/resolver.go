package elsewhere

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"participant-auth/internal/auth"
	"participant-auth/internal/logger"
	"participant-auth/internal/participant"

	"github.com/google/uuid"
)

// Resolver determines which participant an external identity belongs to.
// It is the ONLY place where identity-to-participant mapping logic lives.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity *auth.Identity,
	) (*participant.Participant, error)
}

// StoreResolver resolves identities against the participant store,
// registering a new participant the first time an identity is seen.
type StoreResolver struct {
	store participant.Store
}

func NewStoreResolver(store participant.Store) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (*participant.Participant, error) {

	if identity == nil {
		return nil, errors.New("identity is nil")
	}
	if identity.Provider == "" || identity.ProviderUserID == "" {
		return nil, errors.New("identity is missing provider or subject")
	}

	// 1. Existing link
	p, err := r.store.FindByElsewhere(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, participant.ErrNotFound) {
		return nil, err
	}

	// 2. New participant, named after the email local part
	p, err = r.register(ctx, usernameHint(identity))
	if err != nil {
		return nil, err
	}

	// 3. Link; a concurrent first login may have linked another participant.
	err = r.store.LinkElsewhere(ctx, p.ID, identity.Provider, identity.ProviderUserID)
	if errors.Is(err, participant.ErrAlreadyLinked) {
		return r.adoptLinked(ctx, p, identity)
	}
	if err != nil {
		r.discard(ctx, p)
		return nil, err
	}

	logger.Info("participant registered from elsewhere", map[string]any{
		"participant_id": p.ID,
		"provider":       identity.Provider,
	})

	return p, nil
}

// adoptLinked drops the participant that lost a link race and returns the
// one that won it.
func (r *StoreResolver) adoptLinked(
	ctx context.Context,
	loser *participant.Participant,
	identity *auth.Identity,
) (*participant.Participant, error) {
	r.discard(ctx, loser)

	p, err := r.store.FindByElsewhere(ctx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("elsewhere: find linked participant: %w", err)
	}
	return p, nil
}

func (r *StoreResolver) discard(ctx context.Context, p *participant.Participant) {
	if err := r.store.Delete(ctx, p.ID); err != nil {
		logger.Warn("failed to remove unlinked participant", map[string]any{
			"participant_id": p.ID,
			"error":          err.Error(),
		})
	}
}

const maxRegisterAttempts = 5

func (r *StoreResolver) register(ctx context.Context, base string) (*participant.Participant, error) {
	name := base
	for i := 0; i < maxRegisterAttempts; i++ {
		p, err := r.store.Create(ctx, participant.NewParticipant{Username: name})
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, participant.ErrUsernameTaken) {
			return nil, err
		}
		name = base + "-" + uuid.NewString()[:8]
	}
	return nil, fmt.Errorf("elsewhere: no free username for %q", base)
}

func usernameHint(identity *auth.Identity) string {
	local, _, _ := strings.Cut(identity.Email, "@")
	local = strings.TrimSpace(local)
	if local == "" {
		return identity.Provider + "-user"
	}
	return local
}
