package repository

import (
	"context"
	"time"

	"billing-lifecycle/internal/domain/customer"
)

type customerRepository struct {
	conn
}

func NewCustomerRepository(db DBTX, dialect Dialect) CustomerRepository {
	return &customerRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *customerRepository) Create(ctx context.Context, c *customer.Customer) error {
	c.CreatedAt = ts(time.Now())
	id, err := r.insertReturningID(ctx, `
        INSERT INTO customers (name, email, billing_currency, created_at)
        VALUES (?,?,?,?)
    `, c.Name, c.Email, c.BillingCurrency, c.CreatedAt)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, id int64) (customer.Customer, error) {
	var c customer.Customer
	err := r.queryRow(ctx, `
        SELECT id, name, email, billing_currency, created_at
        FROM customers WHERE id = ?
    `, id).Scan(&c.ID, &c.Name, &c.Email, &c.BillingCurrency, &c.CreatedAt)
	if err != nil {
		return customer.Customer{}, notFound(err, "customer", id)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
