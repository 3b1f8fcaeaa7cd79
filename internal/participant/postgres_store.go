package participant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"participant-auth/internal/db"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const selectParticipant = `
	SELECT id, username, username_lower, is_admin, is_suspicious,
	       session_token, session_expires, api_key, password_hash, created_at
	FROM participants
`

// PostgresStore keeps participants in the participants table.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, np NewParticipant) (*Participant, error) {
	if err := validateNew(np); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO participants (username, username_lower, is_admin, is_suspicious, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, username_lower, is_admin, is_suspicious,
		          session_token, session_expires, api_key, password_hash, created_at
	`, np.Username, Canonical(np.Username), np.IsAdmin, suspicionToNull(np.Suspicion),
		sql.NullString{String: np.PasswordHash, Valid: np.PasswordHash != ""})

	p, err := scanParticipant(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("participant: create: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByUsernameLower(ctx context.Context, usernameLower string) (*Participant, error) {
	return s.findOne(ctx, `WHERE username_lower = $1`, Canonical(usernameLower))
}

func (s *PostgresStore) FindBySessionToken(ctx context.Context, token string) (*Participant, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `WHERE session_token = $1`, token)
}

func (s *PostgresStore) FindByAPIKey(ctx context.Context, apiKey string) (*Participant, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `WHERE api_key = $1`, apiKey)
}

func (s *PostgresStore) FindByElsewhere(ctx context.Context, provider, providerUserID string) (*Participant, error) {
	return s.findOne(ctx, `
		WHERE id = (
			SELECT participant_id FROM elsewhere
			WHERE provider = $1 AND provider_user_id = $2
		)`, provider, providerUserID)
}

func (s *PostgresStore) SetSession(ctx context.Context, id, token string, expires time.Time) error {
	return s.update(ctx, `
		UPDATE participants SET session_token = $2, session_expires = $3 WHERE id = $1
	`, id, token, expires)
}

func (s *PostgresStore) SetSessionExpires(ctx context.Context, id string, expires time.Time) error {
	return s.update(ctx, `
		UPDATE participants SET session_expires = $2 WHERE id = $1
	`, id, expires)
}

func (s *PostgresStore) ClearSession(ctx context.Context, id string) error {
	return s.update(ctx, `
		UPDATE participants SET session_token = NULL, session_expires = NULL WHERE id = $1
	`, id)
}

func (s *PostgresStore) SetAPIKey(ctx context.Context, id, apiKey string) error {
	return s.update(ctx, `
		UPDATE participants SET api_key = $2 WHERE id = $1
	`, id, apiKey)
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, `
		UPDATE participants SET password_hash = $2 WHERE id = $1
	`, id, hash)
}

func (s *PostgresStore) SetSuspicion(ctx context.Context, id string, susp Suspicion) error {
	return s.update(ctx, `
		UPDATE participants SET is_suspicious = $2 WHERE id = $1
	`, id, suspicionToNull(susp))
}

func (s *PostgresStore) LinkElsewhere(ctx context.Context, id, provider, providerUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO elsewhere (participant_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`, id, provider, providerUserID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("participant: link elsewhere: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.update(ctx, `DELETE FROM participants WHERE id = $1`, id)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx, selectParticipant+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("participant: query: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("participant: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("participant: update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanParticipant(row *sql.Row) (*Participant, error) {
	var (
		p            Participant
		suspicious   sql.NullBool
		sessionToken sql.NullString
		expires      sql.NullTime
		apiKey       sql.NullString
		passwordHash sql.NullString
	)

	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.UsernameLower,
		&p.IsAdmin,
		&suspicious,
		&sessionToken,
		&expires,
		&apiKey,
		&passwordHash,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Suspicion = suspicionFromNull(suspicious)
	p.SessionToken = sessionToken.String
	p.SessionExpires = expires.Time
	p.APIKey = apiKey.String
	p.PasswordHash = passwordHash.String

	return &p, nil
}

// is_suspicious is NULL while a participant is unreviewed.
func suspicionToNull(s Suspicion) sql.NullBool {
	switch s {
	case Whitelisted:
		return sql.NullBool{Bool: false, Valid: true}
	case Blacklisted:
		return sql.NullBool{Bool: true, Valid: true}
	}
	return sql.NullBool{}
}

func suspicionFromNull(b sql.NullBool) Suspicion {
	switch {
	case !b.Valid:
		return Unreviewed
	case b.Bool:
		return Blacklisted
	default:
		return Whitelisted
	}
}
