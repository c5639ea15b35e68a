package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-lifecycle/internal/domain/catalog"
	billing_errors "billing-lifecycle/pkg/errors"
)

type serviceRepository struct {
	conn
}

func NewServiceRepository(db DBTX, dialect Dialect) ServiceRepository {
	return &serviceRepository{conn: conn{db: db, dialect: dialect}}
}

// FindOrCreate resolves the service a customer holds for a reference, creating
// it on first use.
func (r *serviceRepository) FindOrCreate(ctx context.Context, customerID int64, serviceType catalog.ServiceType, reference string) (catalog.Service, error) {
	reference = strings.ToLower(strings.TrimSpace(reference))
	svc, err := r.find(ctx, customerID, serviceType, reference)
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, billing_errors.ErrNotFound) {
		return catalog.Service{}, err
	}
	svc = catalog.Service{CustomerID: customerID, Type: serviceType, Reference: reference, CreatedAt: ts(time.Now())}
	// ON CONFLICT keeps a concurrent insert from aborting the caller's transaction.
	id, err := r.insertReturningID(ctx, `
        INSERT INTO services (customer_id, service_type, reference, created_at)
        VALUES (?,?,?,?)
        ON CONFLICT (customer_id, service_type, reference) DO NOTHING
    `, svc.CustomerID, string(svc.Type), svc.Reference, svc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.find(ctx, customerID, serviceType, reference)
	}
	if err != nil {
		return catalog.Service{}, err
	}
	svc.ID = id
	return svc, nil
}

func (r *serviceRepository) find(ctx context.Context, customerID int64, serviceType catalog.ServiceType, reference string) (catalog.Service, error) {
	var (
		svc  catalog.Service
		kind string
	)
	err := r.queryRow(ctx, `
        SELECT id, customer_id, service_type, reference, created_at
        FROM services
        WHERE customer_id = ? AND service_type = ? AND reference = ?
    `, customerID, string(serviceType), reference).Scan(&svc.ID, &svc.CustomerID, &kind, &svc.Reference, &svc.CreatedAt)
	if err != nil {
		return catalog.Service{}, notFound(err, "service", reference)
	}
	svc.Type = catalog.ServiceType(kind)
	svc.CreatedAt = svc.CreatedAt.UTC()
	return svc, nil
}

func (r *serviceRepository) GetByID(ctx context.Context, id int64) (catalog.Service, error) {
	var (
		svc  catalog.Service
		kind string
	)
	err := r.queryRow(ctx, `
        SELECT id, customer_id, service_type, reference, created_at
        FROM services WHERE id = ?
    `, id).Scan(&svc.ID, &svc.CustomerID, &kind, &svc.Reference, &svc.CreatedAt)
	if err != nil {
		return catalog.Service{}, notFound(err, "service", id)
	}
	svc.Type = catalog.ServiceType(kind)
	svc.CreatedAt = svc.CreatedAt.UTC()
	return svc, nil
}

type registrarRepository struct {
	conn
}

func NewRegistrarRepository(db DBTX, dialect Dialect) RegistrarRepository {
	return &registrarRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *registrarRepository) Create(ctx context.Context, reg *catalog.Registrar) error {
	if reg.AdapterKey == "" {
		return fmt.Errorf("registrar %q has no adapter key: %w", reg.Name, billing_errors.ErrInvalidInput)
	}
	reg.CreatedAt = ts(time.Now())
	id, err := r.insertReturningID(ctx, `
        INSERT INTO registrars (name, adapter_key, currency, is_active, created_at)
        VALUES (?,?,?,?,?)
    `, reg.Name, reg.AdapterKey, reg.Currency, reg.Active, reg.CreatedAt)
	if err != nil {
		return err
	}
	reg.ID = id
	return nil
}

func (r *registrarRepository) GetByID(ctx context.Context, id int64) (catalog.Registrar, error) {
	var reg catalog.Registrar
	err := r.queryRow(ctx, `
        SELECT id, name, adapter_key, currency, is_active, created_at
        FROM registrars WHERE id = ?
    `, id).Scan(&reg.ID, &reg.Name, &reg.AdapterKey, &reg.Currency, &reg.Active, &reg.CreatedAt)
	if err != nil {
		return catalog.Registrar{}, notFound(err, "registrar", id)
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	return reg, nil
}
