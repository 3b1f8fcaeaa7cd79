package db

import (
	"context"
)

const participantsMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS participants (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    username text NOT NULL,
    username_lower text NOT NULL,
    is_admin boolean NOT NULL DEFAULT false,
    is_suspicious boolean,
    session_token text,
    session_expires timestamptz,
    api_key text,
    password_hash text,
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS participants_username_lower_unique
ON participants (username_lower);

CREATE UNIQUE INDEX IF NOT EXISTS participants_session_token_unique
ON participants (session_token);

CREATE UNIQUE INDEX IF NOT EXISTS participants_api_key_unique
ON participants (api_key);

CREATE TABLE IF NOT EXISTS elsewhere (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    participant_id uuid NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    provider text NOT NULL,
    provider_user_id text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT elsewhere_provider_unique
        UNIQUE (provider, provider_user_id)
);

CREATE INDEX IF NOT EXISTS elsewhere_participant_id_idx
ON elsewhere (participant_id);
`

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.ExecContext(ctx, participantsMigration)
	return err
}
