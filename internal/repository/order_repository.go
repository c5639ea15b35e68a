package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/order"
	billing_errors "billing-lifecycle/pkg/errors"
)

const orderColumns = `id, order_number, customer_id, service_id, service_type, registrar_id, auto_renew, status, start_date,
        next_billing_date, billing_cycle_months, recurring_amount, currency, suspend_reason,
        version, created_at, updated_at`

type orderRepository struct {
	conn
}

func NewOrderRepository(db DBTX, dialect Dialect) OrderRepository {
	return &orderRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	now := ts(time.Now())
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1
	if o.BillingCycleMonths <= 0 {
		o.BillingCycleMonths = 12
	}
	id, err := r.insertReturningID(ctx, `
        INSERT INTO orders (order_number, customer_id, service_id, service_type, registrar_id, auto_renew,
            status, start_date, next_billing_date, billing_cycle_months, recurring_amount, currency,
            suspend_reason, version, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		o.OrderNumber,
		o.CustomerID,
		o.ServiceID,
		o.ServiceType,
		int64PtrArg(o.RegistrarID),
		o.AutoRenew,
		string(o.Status),
		tsPtr(o.StartDate),
		tsPtr(o.NextBillingDate),
		o.BillingCycleMonths,
		o.RecurringAmount,
		o.Currency,
		o.SuspendReason,
		o.Version,
		ts(o.CreatedAt),
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", o.OrderNumber, billing_errors.ErrAlreadyExists)
		}
		return err
	}
	o.ID = id
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (order.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (order.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`+r.dialect.ForUpdate(), id)
}

func (r *orderRepository) get(ctx context.Context, query string, id int64) (order.Order, error) {
	o, err := scanOrder(r.queryRow(ctx, query, id))
	if err != nil {
		return order.Order{}, notFound(err, "order", id)
	}
	return o, nil
}

// CountOpenRegistrations counts Pending domain orders for name across all
// customers, skipping excludeID.
func (r *orderRepository) CountOpenRegistrations(ctx context.Context, name string, excludeID int64) (int64, error) {
	var n int64
	err := r.queryRow(ctx, `
        SELECT COUNT(*)
        FROM orders o
        JOIN services s ON s.id = o.service_id
        WHERE s.service_type = ? AND s.reference = ? AND o.status = ? AND o.id <> ?
    `, string(catalog.ServiceTypeDomain), name, string(order.StatusPending), excludeID).Scan(&n)
	return n, err
}

func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	now := ts(time.Now())
	res, err := r.exec(ctx, `
        UPDATE orders
        SET status = ?, start_date = ?, next_billing_date = ?, billing_cycle_months = ?,
            recurring_amount = ?, currency = ?, suspend_reason = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `,
		string(o.Status),
		tsPtr(o.StartDate),
		tsPtr(o.NextBillingDate),
		o.BillingCycleMonths,
		o.RecurringAmount,
		o.Currency,
		o.SuspendReason,
		now,
		o.ID,
		o.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, o.ID); err != nil {
			return err
		}
		return fmt.Errorf("order %d version %d: %w", o.ID, o.Version, billing_errors.ErrConflict)
	}
	o.Version++
	o.UpdatedAt = now
	return nil
}

func scanOrder(row *sql.Row) (order.Order, error) {
	var (
		o           order.Order
		status      string
		startDate   sql.NullTime
		nextBilling sql.NullTime
		registrarID sql.NullInt64
	)
	if err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.ServiceID,
		&o.ServiceType,
		&registrarID,
		&o.AutoRenew,
		&status,
		&startDate,
		&nextBilling,
		&o.BillingCycleMonths,
		&o.RecurringAmount,
		&o.Currency,
		&o.SuspendReason,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.RegistrarID = nullInt64Ptr(registrarID)
	o.StartDate = nullTimePtr(startDate)
	o.NextBillingDate = nullTimePtr(nextBilling)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}
