package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"globalreach/internal/message/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// Postgres persists messages in the messages table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed message store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const messageColumns = `id, lead_id, channel, direction, body, media_type, media_url,
	provider_message_id, status, error_code, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(msg.ID), uuid.UUID(msg.LeadID), msg.Channel.String(), string(msg.Direction),
		msg.Body, msg.MediaType, msg.MediaURL, msg.ProviderMessageID, string(msg.Status),
		msg.ErrorCode, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, msg *models.Message) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET provider_message_id = $2, status = $3, error_code = $4, updated_at = $5
		WHERE id = $1`,
		uuid.UUID(msg.ID), msg.ProviderMessageID, string(msg.Status), msg.ErrorCode, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, uuid.UUID(messageID))
	return scanMessage(row)
}

func (s *Postgres) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE provider_message_id = $1`, providerMessageID)
	return scanMessage(row)
}

func (s *Postgres) ListByLead(ctx context.Context, leadID id.LeadID, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE lead_id = $1 ORDER BY created_at`
	args := []any{uuid.UUID(leadID)}
	if limit > 0 {
		// Most recent N, presented oldest first.
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages WHERE lead_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg       models.Message
		rawID     uuid.UUID
		rawLeadID uuid.UUID
		channel   string
		direction string
		status    string
	)
	err := row.Scan(&rawID, &rawLeadID, &channel, &direction, &msg.Body, &msg.MediaType,
		&msg.MediaURL, &msg.ProviderMessageID, &status, &msg.ErrorCode, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.ID = id.MessageID(rawID)
	msg.LeadID = id.LeadID(rawLeadID)
	msg.Channel = id.Channel(channel)
	msg.Direction = models.Direction(direction)
	msg.Status = models.Status(status)
	return &msg, nil
}
