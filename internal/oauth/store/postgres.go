package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"globalreach/internal/oauth/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// Postgres persists connections in the oauth_connections table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const connectionColumns = `id, provider, account_id, access_token, refresh_token, token_type,
	scopes, expires_at, created_at, updated_at`

// Upsert replaces the provider's connection on conflict so reconnecting
// overwrites the previous grant.
func (s *Postgres) Upsert(ctx context.Context, conn *models.Connection) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider) DO UPDATE SET
			id = EXCLUDED.id,
			account_id = EXCLUDED.account_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scopes = EXCLUDED.scopes,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`,
		uuid.UUID(conn.ID), conn.Provider, conn.AccountID, conn.AccessToken, conn.RefreshToken,
		conn.TokenType, conn.Scopes, conn.ExpiresAt, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert oauth connection: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, conn *models.Connection) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oauth_connections
		SET access_token = $2, refresh_token = $3, token_type = $4, scopes = $5,
			expires_at = $6, updated_at = $7
		WHERE id = $1`,
		uuid.UUID(conn.ID), conn.AccessToken, conn.RefreshToken, conn.TokenType, conn.Scopes,
		conn.ExpiresAt, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update oauth connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM oauth_connections WHERE id = $1`, uuid.UUID(connectionID))
	return scanConnection(row)
}

func (s *Postgres) FindByProvider(ctx context.Context, provider string) (*models.Connection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM oauth_connections WHERE provider = $1`, provider)
	return scanConnection(row)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Connection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+connectionColumns+` FROM oauth_connections ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("list oauth connections: %w", err)
	}
	defer rows.Close()

	var out []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, connectionID id.ConnectionID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM oauth_connections WHERE id = $1`, uuid.UUID(connectionID))
	if err != nil {
		return fmt.Errorf("delete oauth connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var rawID uuid.UUID
	err := row.Scan(&rawID, &conn.Provider, &conn.AccountID, &conn.AccessToken,
		&conn.RefreshToken, &conn.TokenType, &conn.Scopes, &conn.ExpiresAt,
		&conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan oauth connection: %w", err)
	}
	conn.ID = id.ConnectionID(rawID)
	return &conn, nil
}
