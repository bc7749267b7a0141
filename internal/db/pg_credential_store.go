package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pysugar/commshub/internal/db/models"
)

// PGCredentialStore keeps credentials and pending states in a hosted Postgres
// database, one row per (user_id, provider).
type PGCredentialStore struct {
	pool   *pgxpool.Pool
	sealer *Sealer
}

// NewPGCredentialStore wraps an open pool. sealer may be nil.
func NewPGCredentialStore(pool *pgxpool.Pool, sealer *Sealer) *PGCredentialStore {
	return &PGCredentialStore{pool: pool, sealer: sealer}
}

// OpenPGCredentialStore connects to dsn and ensures the schema exists.
func OpenPGCredentialStore(ctx context.Context, dsn string, sealer *Sealer) (*PGCredentialStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to credentials database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping credentials database: %w", err)
	}
	store := NewPGCredentialStore(pool, sealer)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the pool.
func (s *PGCredentialStore) Close() {
	s.pool.Close()
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS public.oauth_credentials (
	id text PRIMARY KEY,
	user_id text NOT NULL,
	provider text NOT NULL,
	provider_user_id text NOT NULL DEFAULT '',
	provider_email text NOT NULL DEFAULT '',
	provider_display_name text NOT NULL DEFAULT '',
	access_token text NOT NULL DEFAULT '',
	refresh_token text NOT NULL DEFAULT '',
	expires_at timestamptz NOT NULL,
	scopes text[] NOT NULL DEFAULT '{}',
	is_connected boolean NOT NULL DEFAULT false,
	sync_status text NOT NULL DEFAULT 'not_connected',
	last_sync_at timestamptz,
	last_error text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (user_id, provider)
);
CREATE TABLE IF NOT EXISTS public.oauth_states (
	user_id text NOT NULL,
	provider text NOT NULL,
	state text NOT NULL UNIQUE,
	expires_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, provider)
);`

// EnsureSchema creates the credential tables when missing.
func (s *PGCredentialStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to create credential schema: %w", err)
	}
	return nil
}

func (s *PGCredentialStore) GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error) {
	query := `SELECT id, user_id, provider, provider_user_id, provider_email, provider_display_name,
	                 access_token, refresh_token, expires_at, scopes, is_connected, sync_status,
	                 last_sync_at, last_error, created_at, updated_at
	          FROM public.oauth_credentials WHERE user_id = $1 AND provider = $2`

	cred := &models.Credential{}
	var status string
	err := s.pool.QueryRow(ctx, query, userID, provider).Scan(
		&cred.ID, &cred.UserID, &cred.Provider, &cred.ProviderUserID, &cred.ProviderEmail, &cred.ProviderDisplayName,
		&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.Scopes, &cred.IsConnected, &status,
		&cred.LastSyncAt, &cred.LastError, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.SyncStatus = models.SyncStatus(status)
	if err := openTokens(s.sealer, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *PGCredentialStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	row := *cred
	if err := sealTokens(s.sealer, &row); err != nil {
		return err
	}
	if row.Scopes == nil {
		row.Scopes = []string{}
	}

	query := `INSERT INTO public.oauth_credentials (id, user_id, provider, provider_user_id, provider_email,
	              provider_display_name, access_token, refresh_token, expires_at, scopes, is_connected,
	              sync_status, last_sync_at, last_error)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	          ON CONFLICT (user_id, provider) DO UPDATE SET
	              provider_user_id = EXCLUDED.provider_user_id,
	              provider_email = EXCLUDED.provider_email,
	              provider_display_name = EXCLUDED.provider_display_name,
	              access_token = EXCLUDED.access_token,
	              refresh_token = EXCLUDED.refresh_token,
	              expires_at = EXCLUDED.expires_at,
	              scopes = EXCLUDED.scopes,
	              is_connected = EXCLUDED.is_connected,
	              sync_status = EXCLUDED.sync_status,
	              last_sync_at = EXCLUDED.last_sync_at,
	              last_error = EXCLUDED.last_error,
	              updated_at = now()
	          RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		row.ID, row.UserID, row.Provider, row.ProviderUserID, row.ProviderEmail,
		row.ProviderDisplayName, row.AccessToken, row.RefreshToken, row.ExpiresAt, row.Scopes, row.IsConnected,
		string(row.SyncStatus), row.LastSyncAt, row.LastError,
	).Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *PGCredentialStore) SaveState(ctx context.Context, st *models.OAuthState) error {
	query := `INSERT INTO public.oauth_states (user_id, provider, state, expires_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (user_id, provider) DO UPDATE SET
	              state = EXCLUDED.state, expires_at = EXCLUDED.expires_at, created_at = now()
	          RETURNING created_at`
	if err := s.pool.QueryRow(ctx, query, st.UserID, st.Provider, st.State, st.ExpiresAt).Scan(&st.CreatedAt); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

func (s *PGCredentialStore) ConsumeState(ctx context.Context, userID, provider string) (*models.OAuthState, error) {
	query := `DELETE FROM public.oauth_states WHERE user_id = $1 AND provider = $2
	          RETURNING user_id, provider, state, expires_at, created_at`
	st := &models.OAuthState{}
	err := s.pool.QueryRow(ctx, query, userID, provider).Scan(&st.UserID, &st.Provider, &st.State, &st.ExpiresAt, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return st, nil
}

func (s *PGCredentialStore) FindStateOwner(ctx context.Context, state, provider string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM public.oauth_states WHERE state = $1 AND provider = $2`, state, provider).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up oauth state: %w", err)
	}
	return userID, nil
}

func (s *PGCredentialStore) HasPendingState(ctx context.Context, userID, provider string, now time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM public.oauth_states WHERE user_id = $1 AND provider = $2 AND expires_at > $3)`
	if err := s.pool.QueryRow(ctx, query, userID, provider, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check oauth state: %w", err)
	}
	return exists, nil
}

func (s *PGCredentialStore) DeleteExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM public.oauth_states WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired oauth states: %w", err)
	}
	return tag.RowsAffected(), nil
}
