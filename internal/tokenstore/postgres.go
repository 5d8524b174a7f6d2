package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// PostgresStore keeps credentials in the session_credentials table.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore returns a Postgres-backed implementation.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

// Save upserts the whole row in a single statement.
func (s *PostgresStore) Save(ctx context.Context, sessionID string, cred domain.Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	if !cred.Usable() && !cred.HasRefreshToken() && cred.LastVerifiedAt == nil {
		return s.Clear(ctx, sessionID)
	}

	const query = `
        INSERT INTO session_credentials (session_id, access_token, refresh_token, user_role, last_verified_at, expires_at)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6)
        ON CONFLICT (session_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            user_role = EXCLUDED.user_role,
            last_verified_at = EXCLUDED.last_verified_at,
            expires_at = EXCLUDED.expires_at,
            updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query,
		sessionID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Role,
		cred.LastVerifiedAt,
		s.expiresAt(),
	); err != nil {
		return fmt.Errorf("postgres save credential: %w", err)
	}
	return nil
}

// Load returns the row, treating expired rows as absent.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (domain.Credential, error) {
	const query = `
        SELECT COALESCE(access_token, ''), COALESCE(refresh_token, ''), COALESCE(user_role, ''), last_verified_at
        FROM session_credentials
        WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > NOW())`

	var (
		cred         domain.Credential
		lastVerified *time.Time
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Role,
		&lastVerified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, ErrNoCredential
		}
		return domain.Credential{}, fmt.Errorf("postgres load credential: %w", err)
	}
	cred.LastVerifiedAt = lastVerified
	return cred, nil
}

// Clear deletes the row.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM session_credentials WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("postgres clear credential: %w", err)
	}
	return nil
}

// PurgeExpired removes rows past their expiry and returns how many were dropped.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM session_credentials WHERE expires_at IS NOT NULL AND expires_at <= NOW()`
	cmd, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("postgres purge credentials: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) expiresAt() *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	at := time.Now().Add(s.ttl)
	return &at
}
