package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/domain/outbox"
	billing_errors "billing-lifecycle/pkg/errors"
)

const outboxColumns = `seq, id, event_type, aggregate_type, aggregate_id, correlation_id, payload,
        occurred_at, created_at, processed_at, retry_count, next_attempt_at, last_error`

type outboxRepository struct {
	conn
}

func NewOutboxRepository(db DBTX, dialect Dialect) OutboxRepository {
	return &outboxRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *outboxRepository) Append(ctx context.Context, events ...event.DomainEvent) error {
	now := ts(time.Now())
	for _, e := range events {
		if e.ID == uuid.Nil || e.Type == "" || e.AggregateType == "" {
			return fmt.Errorf("append outbox event: %w", event.ErrInvalidEvent)
		}
		payload := e.Payload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		_, err := r.exec(ctx, `
        INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, correlation_id, payload,
            occurred_at, created_at, retry_count, next_attempt_at, last_error)
        VALUES (?,?,?,?,?,?,?,?,0,?,'')
    `,
			e.ID.String(),
			e.Type,
			e.AggregateType,
			e.AggregateID,
			e.CorrelationID,
			string(payload),
			ts(e.OccurredAt),
			now,
			now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("outbox event %s: %w", e.ID, billing_errors.ErrAlreadyExists)
			}
			return fmt.Errorf("append outbox event %s: %w", e.Type, err)
		}
	}
	return nil
}

// FetchPending returns due records oldest first. A record queued behind a
// not yet due record of the same aggregate is held back with it.
func (r *outboxRepository) FetchPending(ctx context.Context, limit int, now time.Time) ([]outbox.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	at := ts(now)
	rows, err := r.query(ctx, `
        SELECT `+outboxColumns+`
        FROM outbox_events o
        WHERE o.processed_at IS NULL
          AND o.next_attempt_at <= ?
          AND NOT EXISTS (
              SELECT 1 FROM outbox_events p
              WHERE p.aggregate_type = o.aggregate_type
                AND p.aggregate_id = o.aggregate_id
                AND p.processed_at IS NULL
                AND p.seq < o.seq
                AND p.next_attempt_at > ?
          )
        ORDER BY o.seq ASC
        LIMIT ?
    `, at, at, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ClaimStream leases the aggregate's stream to owner until until. It fails
// while another owner holds an unexpired lease; the current owner extends it.
func (r *outboxRepository) ClaimStream(ctx context.Context, aggregateType string, aggregateID int64, owner string, until, now time.Time) (bool, error) {
	res, err := r.exec(ctx, `
        INSERT INTO outbox_leases (aggregate_type, aggregate_id, owner, locked_until)
        VALUES (?,?,?,?)
        ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE
        SET owner = excluded.owner, locked_until = excluded.locked_until
        WHERE outbox_leases.locked_until <= ? OR outbox_leases.owner = excluded.owner
    `, aggregateType, aggregateID, owner, ts(until), ts(now))
	if err != nil {
		return false, fmt.Errorf("claim outbox stream %s:%d: %w", aggregateType, aggregateID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseStream drops owner's lease. A lease taken over by someone else is
// left alone.
func (r *outboxRepository) ReleaseStream(ctx context.Context, aggregateType string, aggregateID int64, owner string) error {
	_, err := r.exec(ctx, `
        DELETE FROM outbox_leases
        WHERE aggregate_type = ? AND aggregate_id = ? AND owner = ?
    `, aggregateType, aggregateID, owner)
	return err
}

// FetchStream returns the aggregate's due pending records in creation order,
// stopping before the first record that is not due yet.
func (r *outboxRepository) FetchStream(ctx context.Context, aggregateType string, aggregateID int64, limit int, now time.Time) ([]outbox.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.query(ctx, `
        SELECT `+outboxColumns+`
        FROM outbox_events
        WHERE aggregate_type = ? AND aggregate_id = ? AND processed_at IS NULL
        ORDER BY seq ASC
        LIMIT ?
    `, aggregateType, aggregateID, limit)
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	for i, rec := range records {
		if rec.NextAttemptAt.After(now) {
			return records[:i], nil
		}
	}
	return records, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.exec(ctx, `
        UPDATE outbox_events SET processed_at = ?
        WHERE id = ? AND processed_at IS NULL
    `, ts(at), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Zero rows: either already processed (a no-op) or unknown.
	return r.exists(ctx, id)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error {
	res, err := r.exec(ctx, `
        UPDATE outbox_events
        SET retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?
        WHERE id = ? AND processed_at IS NULL
    `, ts(nextAttemptAt), truncate(reason, 2000), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return r.exists(ctx, id)
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}

func (r *outboxRepository) Get(ctx context.Context, id uuid.UUID) (outbox.Record, error) {
	rows, err := r.query(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = ?`, id.String())
	if err != nil {
		return outbox.Record{}, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return outbox.Record{}, err
	}
	if len(records) == 0 {
		return outbox.Record{}, fmt.Errorf("outbox event %s: %w", id, billing_errors.ErrNotFound)
	}
	return records[0], nil
}

func (r *outboxRepository) ListByAggregate(ctx context.Context, aggregateType string, aggregateID int64) ([]outbox.Record, error) {
	rows, err := r.query(ctx, `
        SELECT `+outboxColumns+`
        FROM outbox_events
        WHERE aggregate_type = ? AND aggregate_id = ?
        ORDER BY seq ASC
    `, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *outboxRepository) exists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := r.queryRow(ctx, `SELECT 1 FROM outbox_events WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("outbox event %s: %w", id, billing_errors.ErrNotFound)
	}
	return err
}

func scanRecords(rows *sql.Rows) ([]outbox.Record, error) {
	defer rows.Close()
	var records []outbox.Record
	for rows.Next() {
		var (
			rec         outbox.Record
			payload     []byte
			processedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.Seq,
			&rec.Event.ID,
			&rec.Event.Type,
			&rec.Event.AggregateType,
			&rec.Event.AggregateID,
			&rec.Event.CorrelationID,
			&payload,
			&rec.Event.OccurredAt,
			&rec.CreatedAt,
			&processedAt,
			&rec.RetryCount,
			&rec.NextAttemptAt,
			&rec.LastError,
		); err != nil {
			return nil, err
		}
		rec.Event.Payload = payload
		rec.Event.OccurredAt = rec.Event.OccurredAt.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.NextAttemptAt = rec.NextAttemptAt.UTC()
		rec.ProcessedAt = nullTimePtr(processedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
