package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/sqlpilot/sqlpilot/internal/store"
)

type Table struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultTables is the fixed e-commerce schema the service answers over.
func DefaultTables() []Table {
	return []Table{
		{
			Name:        "customers",
			Description: "Contains customer information including unique ID, name, join date, and geographical region. Use this table to filter by customer demographics or tenure.",
		},
		{
			Name:        "products",
			Description: "Catalog of available items. Columns include product ID, name, category (e.g., Electronics, Clothing), price, and current inventory count. Use this for product-related queries.",
		},
		{
			Name:        "orders",
			Description: "Transactional records of purchases. Links customers to their orders. Includes order ID, customer ID, order date, and current status (e.g., Pending, Delivered).",
		},
		{
			Name:        "order_items",
			Description: "Line items for each order. Links orders to specific products. Contains order ID, product_id, and quantity purchased. Use this to calculate total sales or product popularity.",
		},
	}
}

// DDLSource hands back the authoritative CREATE TABLE text for one table.
// Unknown tables must report store.ErrNotFound.
type DDLSource interface {
	TableDDL(ctx context.Context, table string) (string, error)
}

// Index ranks the fixed table set against a question and assembles live DDL
// context. The lexical index is built once at construction and read-only
// afterwards.
type Index struct {
	tables []Table
	idx    bleve.Index
	ddl    DDLSource
}

func NewIndex(tables []Table, ddl DDLSource) (*Index, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("at least one table is required")
	}
	if ddl == nil {
		return nil, fmt.Errorf("ddl source is required")
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("build schema index: %w", err)
	}
	for _, table := range tables {
		if err := idx.Index(table.Name, table); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index table %q: %w", table.Name, err)
		}
	}
	return &Index{tables: tables, idx: idx, ddl: ddl}, nil
}

// RelevantTables returns up to k table names ranked by lexical similarity
// between the question and each table's indexed description. Questions with
// no term overlap return an empty slice.
func (i *Index) RelevantTables(ctx context.Context, question string, k int) ([]string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1")
	}

	search := bleve.NewSearchRequest(bleve.NewMatchQuery(question))
	search.Size = k
	res, err := i.idx.SearchInContext(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("search schema index: %w", err)
	}

	names := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		names = append(names, hit.ID)
	}
	return names, nil
}

// DDL assembles live CREATE TABLE text for the named tables, one statement
// per line. Tables the store does not know are skipped. Other lookup
// failures leave the text partial; the first such error is returned
// alongside whatever was assembled so the caller can log and proceed.
func (i *Index) DDL(ctx context.Context, names []string) (string, error) {
	parts := make([]string, 0, len(names))
	var firstErr error
	for _, name := range names {
		ddl, err := i.ddl.TableDDL(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("table %q: %w", name, err)
			}
			continue
		}
		parts = append(parts, ddl)
	}
	return strings.Join(parts, "\n"), firstErr
}

// Tables returns the fixed table set the index was built over.
func (i *Index) Tables() []Table {
	return i.tables
}

func (i *Index) Close() error {
	return i.idx.Close()
}
