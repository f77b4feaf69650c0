package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"globalreach/internal/lead/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Postgres persists leads in the leads table. Duplicate (channel, phone)
// pairs are fenced by a partial unique index, so concurrent creates resolve
// to exactly one winner.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed lead store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const leadColumns = `id, name, company, country, phone, email, channel, source, status, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, lead *models.Lead) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(lead.ID), lead.Name, lead.Company, lead.Country, lead.Phone, lead.Email,
		lead.Channel.String(), lead.Source, string(lead.Status), lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, lead *models.Lead) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads
		SET name = $2, company = $3, country = $4, phone = $5, email = $6,
			source = $7, status = $8, updated_at = $9
		WHERE id = $1`,
		uuid.UUID(lead.ID), lead.Name, lead.Company, lead.Country, lead.Phone, lead.Email,
		lead.Source, string(lead.Status), lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, leadID id.LeadID) (*models.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, uuid.UUID(leadID))
	return scanLead(row)
}

func (s *Postgres) FindByHandle(ctx context.Context, channel id.Channel, handle string) (*models.Lead, error) {
	handle = strings.ToLower(models.NormalizePhone(handle))
	row := s.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE channel = $1 AND (lower(phone) = $2 OR email = $2)
		LIMIT 1`,
		channel.String(), handle)
	return scanLead(row)
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel.String())
		conds = append(conds, fmt.Sprintf("channel = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, leadID id.LeadID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, uuid.UUID(leadID))
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		lead    models.Lead
		rawID   uuid.UUID
		channel string
		status  string
	)
	err := row.Scan(&rawID, &lead.Name, &lead.Company, &lead.Country, &lead.Phone, &lead.Email,
		&channel, &lead.Source, &status, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	lead.ID = id.LeadID(rawID)
	lead.Channel = id.Channel(channel)
	lead.Status = models.LeadStatus(status)
	return &lead, nil
}
