package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-lifecycle/internal/domain/invoice"
	billing_errors "billing-lifecycle/pkg/errors"
)

const invoiceColumns = `id, invoice_number, customer_id, order_id, domain_id, kind, status, currency,
        total_amount, due_date, period_start, payment_reference, paid_at, created_at, updated_at`

type invoiceRepository struct {
	conn
}

func NewInvoiceRepository(db DBTX, dialect Dialect) InvoiceRepository {
	return &invoiceRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	now := ts(time.Now())
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	id, err := r.insertReturningID(ctx, `
        INSERT INTO invoices (invoice_number, customer_id, order_id, domain_id, kind, status, currency,
            total_amount, due_date, period_start, payment_reference, paid_at, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		inv.Number,
		inv.CustomerID,
		int64PtrArg(inv.OrderID),
		int64PtrArg(inv.DomainID),
		string(inv.Kind),
		string(inv.Status),
		inv.Currency,
		inv.TotalAmount,
		ts(inv.DueDate),
		tsPtr(inv.PeriodStart),
		inv.PaymentReference,
		tsPtr(inv.PaidAt),
		ts(inv.CreatedAt),
		inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice %s: %w", inv.Number, billing_errors.ErrAlreadyExists)
		}
		return err
	}
	inv.ID = id
	return nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int64) (invoice.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (r *invoiceRepository) GetForUpdate(ctx context.Context, id int64) (invoice.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`+r.dialect.ForUpdate(), id)
}

func (r *invoiceRepository) get(ctx context.Context, query string, id int64) (invoice.Invoice, error) {
	inv, err := scanInvoice(r.queryRow(ctx, query, id))
	if err != nil {
		return invoice.Invoice{}, notFound(err, "invoice", id)
	}
	return inv, nil
}

// FindRenewal returns the open or paid renewal invoice billed for the period
// starting at periodStart. Cancelled invoices are ignored.
func (r *invoiceRepository) FindRenewal(ctx context.Context, domainID int64, periodStart time.Time) (invoice.Invoice, error) {
	inv, err := scanInvoice(r.queryRow(ctx, `
        SELECT `+invoiceColumns+`
        FROM invoices
        WHERE domain_id = ? AND kind = ? AND period_start = ? AND status <> ?
        ORDER BY id DESC
        LIMIT 1
    `, domainID, string(invoice.KindRenewal), ts(periodStart), string(invoice.StatusCancelled)))
	if err != nil {
		return invoice.Invoice{}, notFound(err, "renewal invoice for domain", domainID)
	}
	return inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	now := ts(time.Now())
	res, err := r.exec(ctx, `
        UPDATE invoices
        SET status = ?, order_id = ?, domain_id = ?, payment_reference = ?, paid_at = ?, updated_at = ?
        WHERE id = ?
    `,
		string(inv.Status),
		int64PtrArg(inv.OrderID),
		int64PtrArg(inv.DomainID),
		inv.PaymentReference,
		tsPtr(inv.PaidAt),
		now,
		inv.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invoice %d: %w", inv.ID, billing_errors.ErrNotFound)
	}
	inv.UpdatedAt = now
	return nil
}

// RecordCapture stores ref on an open invoice that has no payment reference
// yet. An invoice that was paid or captured meanwhile yields ErrConflict.
func (r *invoiceRepository) RecordCapture(ctx context.Context, id int64, ref string) error {
	res, err := r.exec(ctx, `
        UPDATE invoices
        SET payment_reference = ?, updated_at = ?
        WHERE id = ? AND status IN (?, ?) AND payment_reference = ''
    `, ref, ts(time.Now()), id, string(invoice.StatusDraft), string(invoice.StatusUnpaid))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invoice %d already paid or captured: %w", id, billing_errors.ErrConflict)
	}
	return nil
}

func scanInvoice(row *sql.Row) (invoice.Invoice, error) {
	var (
		inv         invoice.Invoice
		orderID     sql.NullInt64
		domainID    sql.NullInt64
		kind        string
		status      string
		periodStart sql.NullTime
		paidAt      sql.NullTime
	)
	if err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.CustomerID,
		&orderID,
		&domainID,
		&kind,
		&status,
		&inv.Currency,
		&inv.TotalAmount,
		&inv.DueDate,
		&periodStart,
		&inv.PaymentReference,
		&paidAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return invoice.Invoice{}, err
	}
	inv.OrderID = nullInt64Ptr(orderID)
	inv.DomainID = nullInt64Ptr(domainID)
	inv.Kind = invoice.Kind(kind)
	inv.Status = invoice.Status(status)
	inv.PeriodStart = nullTimePtr(periodStart)
	inv.PaidAt = nullTimePtr(paidAt)
	inv.DueDate = inv.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}
