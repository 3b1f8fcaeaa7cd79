package participant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each participant in a hash, with one index key per
// lookup path pointing back at the participant id.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed participant store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "participant:",
	}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }
func (r *RedisStore) usernameKey(lower string) string { return r.prefix + "username:" + lower }
func (r *RedisStore) sessionKey(token string) string { return r.prefix + "session:" + token }
func (r *RedisStore) apiKeyKey(apiKey string) string { return r.prefix + "apikey:" + apiKey }
func (r *RedisStore) elsewhereKey(provider, puid string) string {
	return r.prefix + "elsewhere:" + provider + ":" + puid
}

const (
	fieldUsername       = "username"
	fieldUsernameLower  = "username_lower"
	fieldIsAdmin        = "is_admin"
	fieldSuspicion      = "suspicion"
	fieldSessionToken   = "session_token"
	fieldSessionExpires = "session_expires"
	fieldAPIKey         = "api_key"
	fieldPasswordHash   = "password_hash"
	fieldCreatedAt      = "created_at"
)

func (r *RedisStore) Create(ctx context.Context, np NewParticipant) (*Participant, error) {
	if err := validateNew(np); err != nil {
		return nil, err
	}

	p := &Participant{
		ID:            uuid.NewString(),
		Username:      np.Username,
		UsernameLower: Canonical(np.Username),
		IsAdmin:       np.IsAdmin,
		Suspicion:     np.Suspicion,
		PasswordHash:  np.PasswordHash,
		CreatedAt:     time.Now().UTC(),
	}

	ok, err := r.client.SetNX(ctx, r.usernameKey(p.UsernameLower), p.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("participant: create: %w", err)
	}
	if !ok {
		return nil, ErrUsernameTaken
	}

	fields := map[string]any{
		fieldUsername:      p.Username,
		fieldUsernameLower: p.UsernameLower,
		fieldIsAdmin:       strconv.FormatBool(p.IsAdmin),
		fieldSuspicion:     p.Suspicion.String(),
		fieldCreatedAt:     p.CreatedAt.UnixNano(),
	}
	if p.PasswordHash != "" {
		fields[fieldPasswordHash] = p.PasswordHash
	}

	err = r.client.HSet(ctx, r.key(p.ID), fields).Err()
	if err != nil {
		_ = r.client.Del(ctx, r.usernameKey(p.UsernameLower)).Err()
		return nil, fmt.Errorf("participant: create: %w", err)
	}

	return p, nil
}

func (r *RedisStore) FindByUsernameLower(ctx context.Context, usernameLower string) (*Participant, error) {
	return r.findVia(ctx, r.usernameKey(Canonical(usernameLower)))
}

func (r *RedisStore) FindBySessionToken(ctx context.Context, token string) (*Participant, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	p, err := r.findVia(ctx, r.sessionKey(token))
	if err != nil {
		return nil, err
	}
	// The index can briefly outlive a rotated token.
	if p.SessionToken != token {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *RedisStore) FindByAPIKey(ctx context.Context, apiKey string) (*Participant, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}
	p, err := r.findVia(ctx, r.apiKeyKey(apiKey))
	if err != nil {
		return nil, err
	}
	if p.APIKey != apiKey {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *RedisStore) FindByElsewhere(ctx context.Context, provider, providerUserID string) (*Participant, error) {
	return r.findVia(ctx, r.elsewhereKey(provider, providerUserID))
}

func (r *RedisStore) SetSession(ctx context.Context, id, token string, expires time.Time) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if p.SessionToken != "" {
			pipe.Del(ctx, r.sessionKey(p.SessionToken))
		}
		pipe.HSet(ctx, r.key(id), map[string]any{
			fieldSessionToken:   token,
			fieldSessionExpires: expires.UnixNano(),
		})
		pipe.Set(ctx, r.sessionKey(token), id, indexTTL(expires))
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: set session: %w", err)
	}
	return nil
}

func (r *RedisStore) SetSessionExpires(ctx context.Context, id string, expires time.Time) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(id), fieldSessionExpires, expires.UnixNano())
		if p.SessionToken != "" {
			pipe.Set(ctx, r.sessionKey(p.SessionToken), id, indexTTL(expires))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: set session expires: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearSession(ctx context.Context, id string) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if p.SessionToken != "" {
			pipe.Del(ctx, r.sessionKey(p.SessionToken))
		}
		pipe.HDel(ctx, r.key(id), fieldSessionToken, fieldSessionExpires)
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: clear session: %w", err)
	}
	return nil
}

func (r *RedisStore) SetAPIKey(ctx context.Context, id, apiKey string) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if p.APIKey != "" {
			pipe.Del(ctx, r.apiKeyKey(p.APIKey))
		}
		pipe.HSet(ctx, r.key(id), fieldAPIKey, apiKey)
		pipe.Set(ctx, r.apiKeyKey(apiKey), id, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: set api key: %w", err)
	}
	return nil
}

func (r *RedisStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return r.setField(ctx, id, fieldPasswordHash, hash)
}

func (r *RedisStore) SetSuspicion(ctx context.Context, id string, s Suspicion) error {
	return r.setField(ctx, id, fieldSuspicion, s.String())
}

func (r *RedisStore) LinkElsewhere(ctx context.Context, id, provider, providerUserID string) error {
	if _, err := r.get(ctx, id); err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.elsewhereKey(provider, providerUserID), id, 0).Result()
	if err != nil {
		return fmt.Errorf("participant: link elsewhere: %w", err)
	}
	if !ok {
		return ErrAlreadyLinked
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(id), r.usernameKey(p.UsernameLower))
		if p.SessionToken != "" {
			pipe.Del(ctx, r.sessionKey(p.SessionToken))
		}
		if p.APIKey != "" {
			pipe.Del(ctx, r.apiKeyKey(p.APIKey))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: delete: %w", err)
	}
	return nil
}

func (r *RedisStore) setField(ctx context.Context, id, field string, value any) error {
	if _, err := r.get(ctx, id); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key(id), field, value).Err(); err != nil {
		return fmt.Errorf("participant: set %s: %w", field, err)
	}
	return nil
}

func (r *RedisStore) findVia(ctx context.Context, indexKey string) (*Participant, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("participant: lookup: %w", err)
	}
	return r.get(ctx, id)
}

func (r *RedisStore) get(ctx context.Context, id string) (*Participant, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("participant: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeParticipant(id, fields)
}

func decodeParticipant(id string, fields map[string]string) (*Participant, error) {
	p := &Participant{
		ID:            id,
		Username:      fields[fieldUsername],
		UsernameLower: fields[fieldUsernameLower],
		SessionToken:  fields[fieldSessionToken],
		APIKey:        fields[fieldAPIKey],
		PasswordHash:  fields[fieldPasswordHash],
	}

	var err error
	if p.IsAdmin, err = strconv.ParseBool(fields[fieldIsAdmin]); err != nil {
		return nil, fmt.Errorf("participant: decode %s: %w", id, err)
	}
	if p.Suspicion, err = ParseSuspicion(fields[fieldSuspicion]); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseNanos(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("participant: decode %s: %w", id, err)
	}
	if p.SessionExpires, err = parseNanos(fields[fieldSessionExpires]); err != nil {
		return nil, fmt.Errorf("participant: decode %s: %w", id, err)
	}

	return p, nil
}

func parseNanos(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

// indexTTL lets Redis drop session indexes once they can no longer resolve.
// Expired sessions keep a short grace so lookups still see them and reject
// them on expiry rather than on absence.
func indexTTL(expires time.Time) time.Duration {
	ttl := time.Until(expires)
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}
