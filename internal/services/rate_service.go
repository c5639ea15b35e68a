package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
	"billing-lifecycle/pkg/logger"
)

// RateCache is satisfied by redis.RateCache. Get returns nil on a miss.
type RateCache interface {
	Get(ctx context.Context, base, target string) (*currency.Quote, error)
	Set(ctx context.Context, q currency.Quote, now time.Time) error
	Invalidate(ctx context.Context, pairs ...currency.Pair) error
}

type RateService struct {
	Deps
	cache RateCache
}

// NewRateService builds the conversion engine. cache may be nil.
func NewRateService(deps Deps, cache RateCache) *RateService {
	return &RateService{Deps: deps, cache: cache}
}

// GetRate resolves the rate in force now.
func (s *RateService) GetRate(ctx context.Context, base, target string) (currency.Quote, error) {
	base, target, err := normalizePair(base, target)
	if err != nil {
		return currency.Quote{}, err
	}
	if base == target {
		return currency.Identity(base), nil
	}
	if s.cache != nil {
		q, err := s.cache.Get(ctx, base, target)
		if err != nil {
			logger.WithContext(ctx, s.Log).Warn("Rate cache read failed", zap.String("pair", base+"/"+target), zap.Error(err))
		} else if q != nil {
			s.Metrics.IncRateLookup("cache")
			return *q, nil
		}
	}
	now := s.now()
	q, err := s.quote(ctx, s.Store.Repos().Rates, base, target, now)
	if err != nil {
		return currency.Quote{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, q, now); err != nil {
			logger.WithContext(ctx, s.Log).Warn("Rate cache write failed", zap.String("pair", base+"/"+target), zap.Error(err))
		}
	}
	return q, nil
}

// GetRateAt resolves the rate that was in force at the given instant.
func (s *RateService) GetRateAt(ctx context.Context, base, target string, at time.Time) (currency.Quote, error) {
	base, target, err := normalizePair(base, target)
	if err != nil {
		return currency.Quote{}, err
	}
	if base == target {
		return currency.Identity(base), nil
	}
	return s.quote(ctx, s.Store.Repos().Rates, base, target, at)
}

// Convert returns amount expressed in target, rounded to target's minor units.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, base, target string) (decimal.Decimal, currency.Quote, error) {
	q, err := s.GetRate(ctx, base, target)
	if err != nil {
		return decimal.Zero, currency.Quote{}, err
	}
	return q.Convert(amount), q, nil
}

// convertWith converts using rates, typically bound to an open transaction.
func (s *RateService) convertWith(ctx context.Context, rates repository.RateRepository, amount decimal.Decimal, base, target string) (decimal.Decimal, error) {
	base, target, err := normalizePair(base, target)
	if err != nil {
		return decimal.Zero, err
	}
	if base == target {
		return currency.Identity(base).Convert(amount), nil
	}
	q, err := s.quote(ctx, rates, base, target, s.now())
	if err != nil {
		return decimal.Zero, err
	}
	return q.Convert(amount), nil
}

func (s *RateService) quote(ctx context.Context, rates repository.RateRepository, base, target string, at time.Time) (currency.Quote, error) {
	rate, err := rates.FindApplicable(ctx, base, target, at)
	if err != nil {
		if errors.Is(err, billing_errors.ErrNotFound) {
			s.Metrics.IncRateLookup("miss")
			return currency.Quote{}, fmt.Errorf("no exchange rate for %s/%s at %s: %w", base, target, at.UTC().Format(time.RFC3339), billing_errors.ErrNotFound)
		}
		return currency.Quote{}, err
	}
	s.Metrics.IncRateLookup("database")
	return currency.Quote{
		Base:      base,
		Target:    target,
		Rate:      rate.EffectiveRate(),
		RateID:    rate.ID,
		ExpiresAt: rate.ExpiryDate,
	}, nil
}

// UpsertRate creates a rate when rate.ID is zero and updates it otherwise.
func (s *RateService) UpsertRate(ctx context.Context, rate currency.ExchangeRate) (currency.ExchangeRate, error) {
	base, target, err := normalizePair(rate.BaseCurrency, rate.TargetCurrency)
	if err != nil {
		return currency.ExchangeRate{}, err
	}
	if base == target {
		return currency.ExchangeRate{}, fmt.Errorf("rate %s/%s: base and target must differ: %w", base, target, billing_errors.ErrInvalidInput)
	}
	if !rate.Rate.IsPositive() {
		return currency.ExchangeRate{}, fmt.Errorf("rate %s/%s must be positive: %w", base, target, billing_errors.ErrInvalidInput)
	}
	if rate.MarkupPercentage.LessThan(decimal.NewFromInt(-100)) {
		return currency.ExchangeRate{}, fmt.Errorf("markup below -100%%: %w", billing_errors.ErrInvalidInput)
	}
	if rate.EffectiveDate.IsZero() {
		rate.EffectiveDate = s.now()
	}
	if rate.ExpiryDate != nil && !rate.ExpiryDate.After(rate.EffectiveDate) {
		return currency.ExchangeRate{}, fmt.Errorf("expiry must be after the effective date: %w", billing_errors.ErrInvalidInput)
	}
	if rate.Source == "" {
		rate.Source = "manual"
	}
	rate.BaseCurrency, rate.TargetCurrency = base, target

	ctx, _ = logger.EnsureCorrelationID(ctx)
	err = s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		if rate.ID == 0 {
			if err := repos.Rates.Create(ctx, &rate); err != nil {
				return err
			}
		} else {
			existing, err := repos.Rates.GetByID(ctx, rate.ID)
			if err != nil {
				return err
			}
			if existing.BaseCurrency != base || existing.TargetCurrency != target {
				return fmt.Errorf("rate %d is %s/%s, pair cannot change: %w",
					rate.ID, existing.BaseCurrency, existing.TargetCurrency, billing_errors.ErrInvalidInput)
			}
			rate.CreatedAt = existing.CreatedAt
			if err := repos.Rates.Update(ctx, &rate); err != nil {
				return err
			}
		}
		return s.Events.Emit(ctx, repos, events.EventTypeExchangeRateUpdated, events.AggregateTypeExchangeRate, rate.ID,
			events.ExchangeRateUpdatedPayload{RateID: rate.ID, Base: base, Target: target})
	})
	if err != nil {
		return currency.ExchangeRate{}, err
	}
	s.Events.Committed(ctx)
	s.invalidate(ctx, currency.Pair{Base: base, Target: target})
	return rate, nil
}

// DeactivateExpiredRates switches off rates past their expiry and drops the
// cached quotes for the affected pairs.
func (s *RateService) DeactivateExpiredRates(ctx context.Context) ([]currency.Pair, error) {
	pairs, err := s.Store.Repos().Rates.DeactivateExpired(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("deactivate expired rates: %w", err)
	}
	if len(pairs) > 0 {
		s.invalidate(ctx, pairs...)
		logger.WithContext(ctx, s.Log).Info("Expired exchange rates deactivated", zap.Int("pairs", len(pairs)))
	}
	return pairs, nil
}

func (s *RateService) invalidate(ctx context.Context, pairs ...currency.Pair) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, pairs...); err != nil {
		logger.WithContext(ctx, s.Log).Warn("Rate cache invalidation failed", zap.Error(err))
	}
}

func normalizePair(base, target string) (string, string, error) {
	b, err := currency.NormalizeCode(base)
	if err != nil {
		return "", "", err
	}
	t, err := currency.NormalizeCode(target)
	if err != nil {
		return "", "", err
	}
	return b, t, nil
}
