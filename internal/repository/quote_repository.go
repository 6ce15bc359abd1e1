package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/portal-service/internal/domain"
)

// QuoteRepository encapsulates quote persistence.
type QuoteRepository interface {
	Create(ctx context.Context, quote *domain.Quote) error
	GetByID(ctx context.Context, id string) (*domain.Quote, error)
	MarkApproved(ctx context.Context, id string) error
	LinkClientAccount(ctx context.Context, quoteID, accountID string) error
	// ListApprovedUnprovisioned feeds the reconciliation sweep: approved
	// quotes that never got a linked client account.
	ListApprovedUnprovisioned(ctx context.Context, limit int) ([]domain.Quote, error)
}

type quoteRepository struct {
	pool *pgxpool.Pool
}

// NewQuoteRepository instantiates repository.
func NewQuoteRepository(pool *pgxpool.Pool) QuoteRepository {
	return &quoteRepository{pool: pool}
}

const quoteColumns = `id, reference, contact_email, contact_name, status, client_account_id, approved_at, created_at, updated_at`

func (r *quoteRepository) Create(ctx context.Context, quote *domain.Quote) error {
	const query = `
        INSERT INTO quotes (reference, contact_email, contact_name, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		quote.Reference,
		quote.ContactEmail,
		quote.ContactName,
		quote.Status,
	).Scan(&quote.ID, &quote.CreatedAt, &quote.UpdatedAt)
}

func (r *quoteRepository) GetByID(ctx context.Context, id string) (*domain.Quote, error) {
	const query = `SELECT ` + quoteColumns + ` FROM quotes WHERE id=$1`
	var quote domain.Quote
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&quote.ID,
		&quote.Reference,
		&quote.ContactEmail,
		&quote.ContactName,
		&quote.Status,
		&quote.ClientAccountID,
		&quote.ApprovedAt,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) MarkApproved(ctx context.Context, id string) error {
	const query = `UPDATE quotes SET status='APPROVED', approved_at=NOW(), updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *quoteRepository) LinkClientAccount(ctx context.Context, quoteID, accountID string) error {
	const query = `UPDATE quotes SET client_account_id=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, accountID, quoteID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *quoteRepository) ListApprovedUnprovisioned(ctx context.Context, limit int) ([]domain.Quote, error) {
	const query = `
        SELECT ` + quoteColumns + ` FROM quotes
        WHERE status='APPROVED' AND client_account_id IS NULL
        ORDER BY approved_at
        LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var quote domain.Quote
		if err := rows.Scan(
			&quote.ID,
			&quote.Reference,
			&quote.ContactEmail,
			&quote.ContactName,
			&quote.Status,
			&quote.ClientAccountID,
			&quote.ApprovedAt,
			&quote.CreatedAt,
			&quote.UpdatedAt,
		); err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}
