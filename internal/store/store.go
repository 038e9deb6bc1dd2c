package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: table not found")

type Config struct {
	Driver string
	DSN    string
}

type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Store executes single statements against the relational store. Every call
// opens a fresh connection and closes it before returning, so a failed
// attempt never leaks driver state into the next correction round.
type Store struct {
	driver string
	dsn    string
}

func New(cfg Config) (*Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("store driver is required")
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	return &Store{driver: driver, dsn: dsn}, nil
}

// Dialect names the SQL dialect for prompt context.
func (s *Store) Dialect() string {
	switch s.driver {
	case "pgx":
		return "PostgreSQL"
	case "duckdb":
		return "DuckDB"
	case "sqlite":
		return "SQLite"
	default:
		return s.driver
	}
}

// Execute runs exactly one statement and returns all result rows. Statement
// errors come back unwrapped; the correction prompt needs the driver's own
// message.
func (s *Store) Execute(ctx context.Context, sqlText string) (*Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{Columns: columns, Rows: resultRows}, nil
}

// TableDDL fetches the authoritative CREATE TABLE text for a table straight
// from the store. Unknown tables return ErrNotFound.
func (s *Store) TableDDL(ctx context.Context, table string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("table name is required")
	}

	db, err := s.open()
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	switch s.driver {
	case "pgx":
		return postgresDDL(ctx, db, table)
	case "duckdb":
		return duckdbDDL(ctx, db, table)
	default:
		return sqliteDDL(ctx, db, table)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s store: %w", s.driver, err)
	}
	return nil
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.driver, err)
	}
	return db, nil
}

func sqliteDDL(ctx context.Context, db *sql.DB, table string) (string, error) {
	var ddl sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch ddl for %q: %w", table, err)
	}
	if !ddl.Valid || strings.TrimSpace(ddl.String) == "" {
		return "", ErrNotFound
	}
	return ensureTrailingSemicolon(ddl.String), nil
}

func duckdbDDL(ctx context.Context, db *sql.DB, table string) (string, error) {
	var ddl sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM duckdb_tables() WHERE table_name = ?`, table).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch ddl for %q: %w", table, err)
	}
	if !ddl.Valid || strings.TrimSpace(ddl.String) == "" {
		return "", ErrNotFound
	}
	return ensureTrailingSemicolon(ddl.String), nil
}

// postgresDDL synthesizes CREATE TABLE text from information_schema, since
// PostgreSQL keeps no original DDL string around.
func postgresDDL(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`, table)
	if err != nil {
		return "", fmt.Errorf("fetch columns for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columnDefs := make([]string, 0)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return "", fmt.Errorf("scan column for %q: %w", table, err)
		}
		def := "    " + name + " " + strings.ToUpper(dataType)
		if nullable == "NO" {
			def += " NOT NULL"
		}
		columnDefs = append(columnDefs, def)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate columns for %q: %w", table, err)
	}
	if len(columnDefs) == 0 {
		return "", ErrNotFound
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", table, strings.Join(columnDefs, ",\n")), nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func ensureTrailingSemicolon(ddl string) string {
	trimmed := strings.TrimSpace(ddl)
	if strings.HasSuffix(trimmed, ";") {
		return trimmed
	}
	return trimmed + ";"
}
