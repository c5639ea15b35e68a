package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"billing-lifecycle/config"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/customer"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/database"

	"github.com/shopspring/decimal"
)

const usage = `
Billing Lifecycle - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Create every table and index that is missing
  status      Show connection status, table row counts and the outbox backlog
  seed-dev    Add a sandbox registrar, a demo customer and a USD/EUR rate

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  DB_DRIVER=sqlite go run cmd/migrate/main.go seed-dev
`

var tables = []string{"customers", "registrars", "services", "orders", "domains", "invoices", "exchange_rates", "outbox_events", "outbox_leases"}

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()
	dialect := repository.DialectFor(cfg.DBDriver)

	switch command {
	case "up":
		runMigrationsUp(ctx, db, dialect)
	case "status":
		showStatus(ctx, db, dialect)
	case "seed-dev":
		runSeedDevelopment(ctx, db, dialect)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, db *sql.DB, dialect repository.Dialect) {
	log.Printf("🚀 Applying %s schema...", dialect)

	if err := repository.InitSchema(ctx, db, dialect); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Schema is up to date!")
}

func showStatus(ctx context.Context, db *sql.DB, dialect repository.Dialect) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(ctx, db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range tables {
		var count int64
		// Table names come from the fixed list above.
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			log.Printf("❌ Table %-16s unavailable: %v", table, err)
			continue
		}
		log.Printf("✅ Table %-16s exists (%d rows)", table, count)
	}

	store := repository.NewStore(db, dialect)
	pending, err := store.Repos().Outbox.CountPending(ctx)
	if err != nil {
		log.Printf("⚠️  Outbox backlog unknown: %v", err)
		return
	}
	log.Printf("📬 Outbox records awaiting dispatch: %d", pending)
}

func runSeedDevelopment(ctx context.Context, db *sql.DB, dialect repository.Dialect) {
	log.Println("🌱 Seeding database (development mode)...")

	if err := repository.InitSchema(ctx, db, dialect); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	store := repository.NewStore(db, dialect)

	reg := catalog.Registrar{Name: "Sandbox Registry", AdapterKey: "sandbox", Currency: "USD", Active: true}
	cust := customer.Customer{Name: "Demo Customer", Email: "demo@example.com", BillingCurrency: "USD"}
	rate := currency.ExchangeRate{
		BaseCurrency:     "USD",
		TargetCurrency:   "EUR",
		Rate:             decimal.RequireFromString("0.92"),
		MarkupPercentage: decimal.RequireFromString("2.5"),
		EffectiveDate:    time.Now().UTC().Truncate(time.Microsecond),
		Source:           "seed",
		IsActive:         true,
	}
	err := store.WithTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Registrars.Create(ctx, &reg); err != nil {
			return err
		}
		if err := repos.Customers.Create(ctx, &cust); err != nil {
			return err
		}
		return repos.Rates.Create(ctx, &rate)
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	log.Printf("   - Registrar: %s (ID: %d)", reg.Name, reg.ID)
	log.Printf("   - Customer: %s (ID: %d)", cust.Email, cust.ID)
	log.Printf("   - Rate: %s/%s %s", rate.BaseCurrency, rate.TargetCurrency, rate.EffectiveRate())
	log.Println("✅ Development seeding completed!")
}
