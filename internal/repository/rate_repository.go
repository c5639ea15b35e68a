package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-lifecycle/internal/domain/currency"
	billing_errors "billing-lifecycle/pkg/errors"
)

const rateColumns = `id, base_currency, target_currency, rate, markup_percentage, effective_date,
        expiry_date, source, is_active, created_at, updated_at`

type rateRepository struct {
	conn
}

func NewRateRepository(db DBTX, dialect Dialect) RateRepository {
	return &rateRepository{conn: conn{db: db, dialect: dialect}}
}

func (r *rateRepository) Create(ctx context.Context, rate *currency.ExchangeRate) error {
	now := ts(time.Now())
	rate.CreatedAt = now
	rate.UpdatedAt = now
	id, err := r.insertReturningID(ctx, `
        INSERT INTO exchange_rates (base_currency, target_currency, rate, markup_percentage,
            effective_date, expiry_date, source, is_active, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?)
    `,
		rate.BaseCurrency,
		rate.TargetCurrency,
		rate.Rate,
		rate.MarkupPercentage,
		ts(rate.EffectiveDate),
		tsPtr(rate.ExpiryDate),
		rate.Source,
		rate.IsActive,
		now,
		now,
	)
	if err != nil {
		return err
	}
	rate.ID = id
	return nil
}

func (r *rateRepository) Update(ctx context.Context, rate *currency.ExchangeRate) error {
	now := ts(time.Now())
	res, err := r.exec(ctx, `
        UPDATE exchange_rates
        SET rate = ?, markup_percentage = ?, effective_date = ?, expiry_date = ?, source = ?,
            is_active = ?, updated_at = ?
        WHERE id = ?
    `,
		rate.Rate,
		rate.MarkupPercentage,
		ts(rate.EffectiveDate),
		tsPtr(rate.ExpiryDate),
		rate.Source,
		rate.IsActive,
		now,
		rate.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exchange rate %d: %w", rate.ID, billing_errors.ErrNotFound)
	}
	rate.UpdatedAt = now
	return nil
}

func (r *rateRepository) GetByID(ctx context.Context, id int64) (currency.ExchangeRate, error) {
	rate, err := scanRate(r.queryRow(ctx, `SELECT `+rateColumns+` FROM exchange_rates WHERE id = ?`, id))
	if err != nil {
		return currency.ExchangeRate{}, notFound(err, "exchange rate", id)
	}
	return rate, nil
}

// FindApplicable picks, among active rows for the pair that are in force at
// at, the one with the latest effective date. Ties go to the newest row.
func (r *rateRepository) FindApplicable(ctx context.Context, base, target string, at time.Time) (currency.ExchangeRate, error) {
	t := ts(at)
	rate, err := scanRate(r.queryRow(ctx, `
        SELECT `+rateColumns+`
        FROM exchange_rates
        WHERE base_currency = ? AND target_currency = ?
          AND is_active = ?
          AND effective_date <= ?
          AND (expiry_date IS NULL OR expiry_date > ?)
        ORDER BY effective_date DESC, id DESC
        LIMIT 1
    `, base, target, true, t, t))
	if err != nil {
		return currency.ExchangeRate{}, notFound(err, "exchange rate", base+"/"+target)
	}
	return rate, nil
}

// DeactivateExpired flips is_active off for rates whose expiry has passed and
// returns the pairs it touched. Running it twice is harmless.
func (r *rateRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]currency.Pair, error) {
	t := ts(now)
	rows, err := r.query(ctx, `
        SELECT DISTINCT base_currency, target_currency
        FROM exchange_rates
        WHERE is_active = ? AND expiry_date IS NOT NULL AND expiry_date <= ?
        ORDER BY base_currency, target_currency
    `, true, t)
	if err != nil {
		return nil, err
	}
	var pairs []currency.Pair
	for rows.Next() {
		var p currency.Pair
		if err := rows.Scan(&p.Base, &p.Target); err != nil {
			rows.Close()
			return nil, err
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	if _, err := r.exec(ctx, `
        UPDATE exchange_rates SET is_active = ?, updated_at = ?
        WHERE is_active = ? AND expiry_date IS NOT NULL AND expiry_date <= ?
    `, false, t, true, t); err != nil {
		return nil, err
	}
	return pairs, nil
}

func scanRate(row *sql.Row) (currency.ExchangeRate, error) {
	var (
		rate   currency.ExchangeRate
		expiry sql.NullTime
	)
	if err := row.Scan(
		&rate.ID,
		&rate.BaseCurrency,
		&rate.TargetCurrency,
		&rate.Rate,
		&rate.MarkupPercentage,
		&rate.EffectiveDate,
		&expiry,
		&rate.Source,
		&rate.IsActive,
		&rate.CreatedAt,
		&rate.UpdatedAt,
	); err != nil {
		return currency.ExchangeRate{}, err
	}
	rate.ExpiryDate = nullTimePtr(expiry)
	rate.EffectiveDate = rate.EffectiveDate.UTC()
	rate.CreatedAt = rate.CreatedAt.UTC()
	rate.UpdatedAt = rate.UpdatedAt.UTC()
	return rate, nil
}
