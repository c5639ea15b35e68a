package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/pkg/logger"
)

const (
	JobRateSweep   = "rate-sweep"
	JobRenewalScan = "renewal-scan"
	JobExpirySweep = "expiry-sweep"
)

type RateSweeper interface {
	DeactivateExpiredRates(ctx context.Context) ([]currency.Pair, error)
}

type RenewalScanner interface {
	ScanRenewals(ctx context.Context) (int, error)
}

type ExpirySweeper interface {
	ExpireDueDomains(ctx context.Context, now time.Time) (int, error)
}

type Specs struct {
	RateSweep   string
	RenewalScan string
	ExpirySweep string
}

// LifecycleJobs builds the three sweeps. now stamps the expiry cutoff.
func LifecycleJobs(specs Specs, rates RateSweeper, renewals RenewalScanner, expiry ExpirySweeper, now func() time.Time, log *zap.Logger) []Job {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return []Job{
		{
			Name: JobRateSweep,
			Spec: specs.RateSweep,
			Run: func(ctx context.Context) error {
				pairs, err := rates.DeactivateExpiredRates(ctx)
				if err == nil && len(pairs) > 0 {
					logger.WithContext(ctx, log).Info("Rate sweep finished", zap.Int("pairs", len(pairs)))
				}
				return err
			},
		},
		{
			Name: JobRenewalScan,
			Spec: specs.RenewalScan,
			Run: func(ctx context.Context) error {
				n, err := renewals.ScanRenewals(ctx)
				if err == nil {
					logger.WithContext(ctx, log).Info("Renewal scan finished", zap.Int("renewed", n))
				}
				return err
			},
		},
		{
			Name: JobExpirySweep,
			Spec: specs.ExpirySweep,
			Run: func(ctx context.Context) error {
				n, err := expiry.ExpireDueDomains(ctx, now().UTC())
				if err == nil && n > 0 {
					logger.WithContext(ctx, log).Info("Expiry sweep finished", zap.Int("expired", n))
				}
				return err
			},
		},
	}
}
