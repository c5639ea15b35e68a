package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-lifecycle/internal/domain/domainname"
	billing_errors "billing-lifecycle/pkg/errors"
)

const domainColumns = `id, name, customer_id, registrar_id, order_id, status, registration_date,
        expiration_date, auto_renew, renewal_price, currency, renewal_years, version,
        created_at, updated_at`

type domainRepository struct {
	conn
}

func NewDomainRepository(db DBTX, dialect Dialect) DomainRepository {
	return &domainRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *domainRepository) Create(ctx context.Context, d *domainname.Domain) error {
	now := ts(time.Now())
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 1
	if d.RenewalYears <= 0 {
		d.RenewalYears = 1
	}
	d.Name = domainname.NormalizeName(d.Name)
	id, err := r.insertReturningID(ctx, `
        INSERT INTO domains (name, customer_id, registrar_id, order_id, status, registration_date,
            expiration_date, auto_renew, renewal_price, currency, renewal_years, version,
            created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		d.Name,
		d.CustomerID,
		d.RegistrarID,
		int64PtrArg(d.OrderID),
		string(d.Status),
		tsPtr(d.RegistrationDate),
		ts(d.ExpirationDate),
		d.AutoRenew,
		d.RenewalPrice,
		d.Currency,
		d.RenewalYears,
		d.Version,
		ts(d.CreatedAt),
		d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("domain %s: %w", d.Name, billing_errors.ErrAlreadyExists)
		}
		return err
	}
	d.ID = id
	return nil
}

func (r *domainRepository) GetByID(ctx context.Context, id int64) (domainname.Domain, error) {
	return r.get(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = ?`, "domain", id)
}

func (r *domainRepository) GetForUpdate(ctx context.Context, id int64) (domainname.Domain, error) {
	return r.get(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = ?`+r.dialect.ForUpdate(), "domain", id)
}

func (r *domainRepository) GetByName(ctx context.Context, name string) (domainname.Domain, error) {
	return r.get(ctx, `SELECT `+domainColumns+` FROM domains WHERE name = ?`, "domain", domainname.NormalizeName(name))
}

func (r *domainRepository) GetByOrderID(ctx context.Context, orderID int64) (domainname.Domain, error) {
	return r.get(ctx, `SELECT `+domainColumns+` FROM domains WHERE order_id = ?`, "domain for order", orderID)
}

func (r *domainRepository) get(ctx context.Context, query, what string, arg interface{}) (domainname.Domain, error) {
	rows, err := r.query(ctx, query, arg)
	if err != nil {
		return domainname.Domain{}, err
	}
	domains, err := scanDomains(rows)
	if err != nil {
		return domainname.Domain{}, err
	}
	if len(domains) == 0 {
		return domainname.Domain{}, fmt.Errorf("%s %v: %w", what, arg, billing_errors.ErrNotFound)
	}
	return domains[0], nil
}

func (r *domainRepository) Update(ctx context.Context, d *domainname.Domain) error {
	now := ts(time.Now())
	res, err := r.exec(ctx, `
        UPDATE domains
        SET status = ?, order_id = ?, registration_date = ?, expiration_date = ?, auto_renew = ?,
            renewal_price = ?, currency = ?, renewal_years = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `,
		string(d.Status),
		int64PtrArg(d.OrderID),
		tsPtr(d.RegistrationDate),
		ts(d.ExpirationDate),
		d.AutoRenew,
		d.RenewalPrice,
		d.Currency,
		d.RenewalYears,
		now,
		d.ID,
		d.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, d.ID); err != nil {
			return err
		}
		return fmt.Errorf("domain %d version %d: %w", d.ID, d.Version, billing_errors.ErrConflict)
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

// ListExpiringBefore returns domains in one of statuses whose expiration date
// is before the cutoff, soonest first.
func (r *domainRepository) ListExpiringBefore(ctx context.Context, before time.Time, statuses []domainname.Status, limit int) ([]domainname.Domain, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	args := make([]interface{}, 0, len(statuses)+2)
	args = append(args, ts(before))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, limit)
	rows, err := r.query(ctx, `
        SELECT `+domainColumns+`
        FROM domains
        WHERE expiration_date < ? AND status IN (`+buildPlaceholders(len(statuses))+`)
        ORDER BY expiration_date ASC, id ASC
        LIMIT ?
    `, args...)
	if err != nil {
		return nil, err
	}
	return scanDomains(rows)
}

func scanDomains(rows *sql.Rows) ([]domainname.Domain, error) {
	defer rows.Close()
	var out []domainname.Domain
	for rows.Next() {
		var (
			d       domainname.Domain
			orderID sql.NullInt64
			status  string
			regDate sql.NullTime
		)
		if err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.CustomerID,
			&d.RegistrarID,
			&orderID,
			&status,
			&regDate,
			&d.ExpirationDate,
			&d.AutoRenew,
			&d.RenewalPrice,
			&d.Currency,
			&d.RenewalYears,
			&d.Version,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		d.OrderID = nullInt64Ptr(orderID)
		d.Status = domainname.Status(status)
		d.RegistrationDate = nullTimePtr(regDate)
		d.ExpirationDate = d.ExpirationDate.UTC()
		d.CreatedAt = d.CreatedAt.UTC()
		d.UpdatedAt = d.UpdatedAt.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
