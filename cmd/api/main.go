package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing-lifecycle/config"
	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/handler"
	"billing-lifecycle/internal/jobs"
	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/internal/outbox"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/redis"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/internal/server"
	"billing-lifecycle/internal/services"
	"billing-lifecycle/internal/storage"
	"billing-lifecycle/pkg/database"
	"billing-lifecycle/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// sandboxAdapter is the adapter key registrar rows use to reach the built-in
// sandbox registrar.
const sandboxAdapter = "sandbox"

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()
	log := l.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		log.Error("Shutting down after error", zap.Error(err))
		l.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	log := l.Logger

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	dialect := repository.DialectFor(cfg.DBDriver)
	if err := repository.InitSchema(ctx, db, dialect); err != nil {
		return err
	}
	store := repository.NewStore(db, dialect)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Redis is optional: without it the dispatcher wakes in-process only, the
	// relay and the rate cache are off and the API is not rate limited.
	var (
		wake      events.Signal = events.NewLocalSignal()
		relay     *events.Relay
		rateCache services.RateCache
		limiter   *redis.RateLimiter
	)
	if cfg.RedisEnabled() {
		client, err := redis.Connect(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, 5*time.Second)
		if err != nil {
			return err
		}
		defer client.Close()

		publisher := redis.NewPublisher(client)
		outboxSignal := redis.NewOutboxSignal(publisher, redis.NewSubscriber(client), log.Named("outbox-signal"))
		go outboxSignal.Listen(ctx, nil)
		wake = outboxSignal
		relay = events.NewRelay(publisher, nil)
		rateCache = redis.NewRateCache(client, cfg.Workflows.RateCacheTTL)
		limiter = redis.NewRateLimiter(client, redis.RateLimitConfig{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window})
		log.Info("Redis connected", zap.String("addr", cfg.RedisHost+":"+cfg.RedisPort))
	}

	var archive *storage.InvoiceArchive
	s3cfg := storage.S3Config{
		Region:     cfg.S3.Region,
		Bucket:     cfg.S3.Bucket,
		AccessKey:  cfg.S3.AccessKey,
		SecretKey:  cfg.S3.SecretKey,
		Endpoint:   cfg.S3.Endpoint,
		PresignTTL: cfg.S3.PresignTTL,
	}
	if s3cfg.Enabled() {
		client, err := storage.NewClient(ctx, s3cfg)
		if err != nil {
			return err
		}
		archive = storage.NewInvoiceArchive(client)
	}

	// Sandbox collaborators stand in for the registrar, gateway, mailer and
	// provisioners until real adapters are registered under their keys.
	timeout := cfg.Workflows.ProviderTimeout
	registrars := providers.NewRegistrarFactory()
	registrars.Register(sandboxAdapter, providers.NewSandboxRegistrar(decimal.NewFromInt(12), "USD"))
	payments := providers.PaymentsWithTimeout(providers.NewSandboxPayments(), timeout)
	notifier := providers.NotifierWithTimeout(providers.NewLogNotifier(log.Named("mail")), timeout)
	provisioners := map[catalog.ServiceType]providers.Provisioner{
		catalog.ServiceTypeHosting: &providers.SandboxProvisioner{},
		catalog.ServiceTypeEmail:   &providers.SandboxProvisioner{},
	}

	deps := services.NewDeps(store, wake, log, m, nil)
	rates := services.NewRateService(deps, rateCache)
	invoices := services.NewInvoiceService(deps, rates, cfg.Workflows.InvoiceDueDays)
	notifications := services.NewNotifications(notifier, store.Repos().Customers, log)
	registration := services.NewDomainRegistration(deps, registrars, invoices, timeout)
	renewal := services.NewDomainRenewal(deps, registrars, payments, invoices, notifications, cfg.Workflows.RenewalWindowDays, timeout)
	provisioning := services.NewOrderProvisioning(deps, provisioners, invoices, timeout, cfg.Workflows.StrictProvisioning)
	lifecycle := services.NewLifecycleService(deps)

	registry := events.NewRegistry()
	handlerSet := services.HandlerSet{
		Store:         store,
		Notifications: notifications,
		Registration:  registration,
		Provisioning:  provisioning,
		Relay:         relay,
		Log:           log,
	}
	if archive != nil {
		handlerSet.Archive = archive
	}
	if err := services.RegisterHandlers(registry, handlerSet); err != nil {
		return err
	}

	maintenance := commands.NewMaintenanceProxy(cfg.Maintenance)
	bus := commands.NewBus(maintenance)
	services.RegisterCommands(bus, services.Workflows{
		Registration: registration,
		Renewal:      renewal,
		Provisioning: provisioning,
		Payments:     services.NewPaymentService(deps),
		Lifecycle:    lifecycle,
	})

	dispatcher := outbox.NewDispatcher(store.Repos().Outbox, registry, outbox.Config{
		BatchSize:      cfg.Outbox.BatchSize,
		Interval:       cfg.Outbox.Interval,
		MaxRetries:     cfg.Outbox.MaxRetries,
		Concurrency:    cfg.Outbox.Concurrency,
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
		RetryBackoff:   cfg.Outbox.RetryBackoff,
		MaxBackoff:     cfg.Outbox.MaxBackoff,
		Lease:          cfg.Outbox.Lease,
	}, outbox.WithLogger(log.Named("outbox")), outbox.WithMetrics(m), outbox.WithSignal(wake))
	runner := outbox.NewRunner(dispatcher)
	runner.Start(ctx)

	scheduler := jobs.NewScheduler(log.Named("jobs"), m, cfg.Jobs.JobTimeout)
	if cfg.Jobs.Enabled {
		for _, job := range jobs.LifecycleJobs(jobs.Specs{
			RateSweep:   cfg.Jobs.RateSweepSpec,
			RenewalScan: cfg.Jobs.RenewalScanSpec,
			ExpirySweep: cfg.Jobs.ExpirySweepSpec,
		}, rates, renewal, lifecycle, nil, log) {
			if err := scheduler.Add(job); err != nil {
				return err
			}
		}
		scheduler.Start()
	}

	var archiveLinks handler.ArchiveLinker
	if archive != nil {
		archiveLinks = archive
	}
	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Domains:  handler.NewDomainHandler(bus),
		Orders:   handler.NewOrderHandler(bus),
		Invoices: handler.NewInvoiceHandler(bus, archiveLinks),
		Rates:    handler.NewRateHandler(rates),
	}, server.Infra{DB: store, Metrics: reg, Limiter: limiter})

	serveErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cfg.Jobs.Enabled {
		scheduler.Stop(shutdownCtx)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Warn("Outbox dispatcher did not stop in time", zap.Error(err))
	}
	return serveErr
}
