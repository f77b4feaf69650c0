package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"globalreach/internal/channelcfg/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Postgres persists channel configs in the channel_configs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const channelConfigColumns = `id, channel, enabled, verify_token, app_secret, phone_number_id,
	smtp_host, smtp_port, smtp_username, smtp_password, from_address, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, cfg *models.ChannelConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_configs (`+channelConfigColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(cfg.ID), cfg.Channel.String(), cfg.Enabled, cfg.VerifyToken, cfg.AppSecret,
		cfg.PhoneNumberID, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.FromAddress, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert channel config: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, cfg *models.ChannelConfig) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channel_configs
		SET enabled = $2, verify_token = $3, app_secret = $4, phone_number_id = $5,
			smtp_host = $6, smtp_port = $7, smtp_username = $8, smtp_password = $9,
			from_address = $10, updated_at = $11
		WHERE id = $1`,
		uuid.UUID(cfg.ID), cfg.Enabled, cfg.VerifyToken, cfg.AppSecret, cfg.PhoneNumberID,
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromAddress,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update channel config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, configID id.ChannelConfigID) (*models.ChannelConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelConfigColumns+` FROM channel_configs WHERE id = $1`, uuid.UUID(configID))
	return scanChannelConfig(row)
}

func (s *Postgres) FindByChannel(ctx context.Context, channel id.Channel) (*models.ChannelConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelConfigColumns+` FROM channel_configs WHERE channel = $1`, channel.String())
	return scanChannelConfig(row)
}

func (s *Postgres) List(ctx context.Context) ([]*models.ChannelConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelConfigColumns+` FROM channel_configs ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("list channel configs: %w", err)
	}
	defer rows.Close()

	var out []*models.ChannelConfig
	for rows.Next() {
		cfg, err := scanChannelConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, configID id.ChannelConfigID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channel_configs WHERE id = $1`, uuid.UUID(configID))
	if err != nil {
		return fmt.Errorf("delete channel config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelConfig(row rowScanner) (*models.ChannelConfig, error) {
	var (
		cfg     models.ChannelConfig
		rawID   uuid.UUID
		channel string
	)
	err := row.Scan(&rawID, &channel, &cfg.Enabled, &cfg.VerifyToken, &cfg.AppSecret,
		&cfg.PhoneNumberID, &cfg.SMTPHost, &cfg.SMTPPort, &cfg.SMTPUsername, &cfg.SMTPPassword,
		&cfg.FromAddress, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan channel config: %w", err)
	}
	cfg.ID = id.ChannelConfigID(rawID)
	cfg.Channel = id.Channel(channel)
	return &cfg, nil
}
