package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Repositories is the set of repositories bound to one DBTX. Inside WithTx
// every member shares the same transaction.
type Repositories struct {
	Outbox     OutboxRepository
	Orders     OrderRepository
	Domains    DomainRepository
	Invoices   InvoiceRepository
	Rates      RateRepository
	Services   ServiceRepository
	Registrars RegistrarRepository
	Customers  CustomerRepository
}

func newRepositories(c conn) Repositories {
	return Repositories{
		Outbox:     &outboxRepository{conn: c},
		Orders:     &orderRepository{conn: c},
		Domains:    &domainRepository{conn: c},
		Invoices:   &invoiceRepository{conn: c},
		Rates:      &rateRepository{conn: c},
		Services:   &serviceRepository{conn: c},
		Registrars: &registrarRepository{conn: c},
		Customers:  &customerRepository{conn: c},
	}
}

// Store owns the pool and hands out repositories.
type Store struct {
	db      *sql.DB
	dialect Dialect
	repos   Repositories
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, repos: newRepositories(conn{db: db, dialect: dialect})}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Repos returns repositories that run each statement on its own.
func (s *Store) Repos() Repositories {
	return s.repos
}

// WithTx runs fn in one transaction. Returning an error rolls back every
// write made through the supplied repositories, outbox appends included.
func (s *Store) WithTx(ctx context.Context, fn func(Repositories) error) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	return WithTx(ctx, s.db, func(tx DBTX) error {
		return fn(newRepositories(conn{db: tx, dialect: s.dialect}))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
