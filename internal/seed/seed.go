package seed

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type Options struct {
	Customers int
	Products  int
	Orders    int
	Seed      int64
}

func DefaultOptions() Options {
	return Options{
		Customers: 20,
		Products:  50,
		Orders:    100,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

type Result struct {
	Customers  int
	Products   int
	Orders     int
	OrderItems int
}

type Runner struct {
	db     *sql.DB
	driver string
}

func NewRunner(db *sql.DB, driver string) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if _, err := schemaScript(driver); err != nil {
		return nil, err
	}
	return &Runner{db: db, driver: strings.TrimSpace(driver)}, nil
}

// Run drops any existing demo tables, recreates the schema, and inserts a
// fresh data set. Everything happens in one transaction so a failed run
// leaves no half-seeded store behind.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Customers <= 0 {
		return Result{}, fmt.Errorf("customer count must be > 0")
	}
	if opts.Products <= 0 {
		return Result{}, fmt.Errorf("product count must be > 0")
	}
	if opts.Orders <= 0 {
		return Result{}, fmt.Errorf("order count must be > 0")
	}

	script, err := schemaScript(r.driver)
	if err != nil {
		return Result{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return Result{}, fmt.Errorf("apply schema: %w", err)
		}
	}

	gen := NewGenerator(opts.Seed)

	customerIDs, err := r.insertCustomers(ctx, tx, gen, opts.Customers)
	if err != nil {
		return Result{}, err
	}
	productIDs, err := r.insertProducts(ctx, tx, gen, opts.Products)
	if err != nil {
		return Result{}, err
	}
	orderIDs, err := r.insertOrders(ctx, tx, gen, customerIDs, opts.Orders)
	if err != nil {
		return Result{}, err
	}
	itemCount, err := r.insertOrderItems(ctx, tx, gen, orderIDs, productIDs)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit seed: %w", err)
	}

	return Result{
		Customers:  len(customerIDs),
		Products:   len(productIDs),
		Orders:     len(orderIDs),
		OrderItems: itemCount,
	}, nil
}

func (r *Runner) insertCustomers(ctx context.Context, tx *sql.Tx, gen *Generator, count int) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind("INSERT INTO customers (name, join_date, region) VALUES (?, ?, ?)"))
	if err != nil {
		return nil, fmt.Errorf("prepare customer insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < count; i++ {
		customer := gen.Customer(i)
		if _, err := stmt.ExecContext(ctx, customer.Name, customer.JoinDate, customer.Region); err != nil {
			return nil, fmt.Errorf("insert customer: %w", err)
		}
	}
	return selectIDs(ctx, tx, "customers")
}

func (r *Runner) insertProducts(ctx context.Context, tx *sql.Tx, gen *Generator, count int) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind("INSERT INTO products (name, category, price, inventory_count) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return nil, fmt.Errorf("prepare product insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < count; i++ {
		product := gen.Product()
		if _, err := stmt.ExecContext(ctx, product.Name, product.Category, product.Price, product.Inventory); err != nil {
			return nil, fmt.Errorf("insert product: %w", err)
		}
	}
	return selectIDs(ctx, tx, "products")
}

func (r *Runner) insertOrders(ctx context.Context, tx *sql.Tx, gen *Generator, customerIDs []int64, count int) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind("INSERT INTO orders (customer_id, order_date, status) VALUES (?, ?, ?)"))
	if err != nil {
		return nil, fmt.Errorf("prepare order insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < count; i++ {
		order := gen.Order(customerIDs)
		if _, err := stmt.ExecContext(ctx, order.CustomerID, order.OrderDate, order.Status); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}
	}
	return selectIDs(ctx, tx, "orders")
}

func (r *Runner) insertOrderItems(ctx context.Context, tx *sql.Tx, gen *Generator, orderIDs, productIDs []int64) (int, error) {
	stmt, err := tx.PrepareContext(ctx, r.rebind("INSERT INTO order_items (order_id, product_id, quantity) VALUES (?, ?, ?)"))
	if err != nil {
		return 0, fmt.Errorf("prepare order item insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	total := 0
	for _, orderID := range orderIDs {
		for _, item := range gen.Items(orderID, productIDs) {
			if _, err := stmt.ExecContext(ctx, item.OrderID, item.ProductID, item.Quantity); err != nil {
				return 0, fmt.Errorf("insert order item: %w", err)
			}
			total++
		}
	}
	return total, nil
}

// rebind rewrites ? placeholders into the $n form pgx expects. The other
// drivers take ? as-is.
func (r *Runner) rebind(query string) string {
	if r.driver != "pgx" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func selectIDs(ctx context.Context, tx *sql.Tx, table string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

func schemaScript(driver string) (string, error) {
	var name string
	switch strings.TrimSpace(driver) {
	case "sqlite":
		name = "sql/sqlite.sql"
	case "pgx":
		name = "sql/postgres.sql"
	case "duckdb":
		name = "sql/duckdb.sql"
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}

	script, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read schema script %s: %w", name, err)
	}
	return string(script), nil
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
