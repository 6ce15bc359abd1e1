package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/portal-service/internal/domain"
)

// NotificationRepository encapsulates delivery-tracking persistence. The
// primary key (event_id, recipient_id, channel) is the idempotency boundary.
type NotificationRepository interface {
	// InsertIfAbsent persists a new pending record. Returns false without
	// error if a record for the same triple already exists.
	InsertIfAbsent(ctx context.Context, record *domain.NotificationRecord) (bool, error)
	Get(ctx context.Context, eventID, recipientID string, channel domain.Channel) (*domain.NotificationRecord, error)
	// RecordAttempt increments the attempt counter and stores the outcome.
	RecordAttempt(ctx context.Context, record *domain.NotificationRecord, status domain.DeliveryStatus, deliveryErr error) error
	// ListPending returns pending records older than the given age, for the
	// retry/reconciliation sweep.
	ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.NotificationRecord, error)
	ListFailed(ctx context.Context, limit int) ([]domain.NotificationRecord, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed implementation.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `event_id, event_type, recipient_id, channel, address, subject, body, status, attempts, last_attempt_at, last_error, created_at`

func (r *notificationRepository) InsertIfAbsent(ctx context.Context, record *domain.NotificationRecord) (bool, error) {
	const query = `
        INSERT INTO notification_records (event_id, event_type, recipient_id, channel, address, subject, body, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (event_id, recipient_id, channel) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		record.EventID,
		record.EventType,
		record.RecipientID,
		record.Channel,
		record.Address,
		record.Subject,
		record.Body,
		domain.DeliveryStatusPending,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *notificationRepository) Get(ctx context.Context, eventID, recipientID string, channel domain.Channel) (*domain.NotificationRecord, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notification_records
        WHERE event_id=$1 AND recipient_id=$2 AND channel=$3`
	var record domain.NotificationRecord
	if err := r.pool.QueryRow(ctx, query, eventID, recipientID, channel).Scan(
		&record.EventID,
		&record.EventType,
		&record.RecipientID,
		&record.Channel,
		&record.Address,
		&record.Subject,
		&record.Body,
		&record.Status,
		&record.Attempts,
		&record.LastAttemptAt,
		&record.LastError,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *notificationRepository) RecordAttempt(ctx context.Context, record *domain.NotificationRecord, status domain.DeliveryStatus, deliveryErr error) error {
	var lastError *string
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		lastError = &msg
	}

	const query = `
        UPDATE notification_records
        SET status=$1, attempts=attempts+1, last_attempt_at=NOW(), last_error=$2
        WHERE event_id=$3 AND recipient_id=$4 AND channel=$5
        RETURNING attempts, last_attempt_at`
	if err := r.pool.QueryRow(ctx, query,
		status,
		lastError,
		record.EventID,
		record.RecipientID,
		record.Channel,
	).Scan(&record.Attempts, &record.LastAttemptAt); err != nil {
		return err
	}
	record.Status = status
	record.LastError = lastError
	return nil
}

func (r *notificationRepository) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.NotificationRecord, error) {
	const query = `
        SELECT ` + notificationColumns + ` FROM notification_records
        WHERE status=$1 AND created_at < NOW() - $2::interval
        ORDER BY created_at
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, domain.DeliveryStatusPending, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *notificationRepository) ListFailed(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	const query = `
        SELECT ` + notificationColumns + ` FROM notification_records
        WHERE status=$1
        ORDER BY last_attempt_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.DeliveryStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *notificationRepository) scanMany(rows pgx.Rows) ([]domain.NotificationRecord, error) {
	var records []domain.NotificationRecord
	for rows.Next() {
		var record domain.NotificationRecord
		if err := rows.Scan(
			&record.EventID,
			&record.EventType,
			&record.RecipientID,
			&record.Channel,
			&record.Address,
			&record.Subject,
			&record.Body,
			&record.Status,
			&record.Attempts,
			&record.LastAttemptAt,
			&record.LastError,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
