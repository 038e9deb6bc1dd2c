package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/seed"
)

func main() {
	customers := flag.Int("customers", 20, "number of demo customers to insert")
	products := flag.Int("products", 50, "number of demo products to insert")
	orders := flag.Int("orders", 100, "number of demo orders to insert")
	rngSeed := flag.Int64("seed", 0, "rng seed for reproducible data; 0 picks a time-based seed")
	flag.Parse()

	// A .env file is optional and only used for local development.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlpilot-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.DSN == "" {
		fmt.Fprintln(os.Stderr, "SQLPILOT_STORE_DSN is required")
		os.Exit(1)
	}

	db, err := sql.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "database ping error: %v\n", err)
		os.Exit(1)
	}

	runner, err := seed.NewRunner(db, cfg.Store.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed setup error: %v\n", err)
		os.Exit(1)
	}

	opts := seed.DefaultOptions()
	opts.Customers = *customers
	opts.Products = *products
	opts.Orders = *orders
	if *rngSeed != 0 {
		opts.Seed = *rngSeed
	}

	result, err := runner.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d customers, %d products, %d orders, %d order items\n",
		result.Customers, result.Products, result.Orders, result.OrderItems)
}
