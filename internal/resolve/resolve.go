package resolve

import (
	"context"
	"errors"

	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

// Response is the externally visible result of one resolution. It is the
// unit written to the cache and returned to the caller; every terminal
// state of the pipeline produces one.
type Response struct {
	Answer             string `json:"answer"`
	SQL                string `json:"sql"`
	Reasoning          string `json:"reasoning"`
	NeedsClarification bool   `json:"needs_clarification"`
}

// NoExecutedSQL marks the SQL field on paths where no statement ran.
const NoExecutedSQL = "N/A"

// Classification is the closed label set for a question. Malformed model
// output coerces to ClassRelevant.
type Classification int

const (
	ClassRelevant Classification = iota
	ClassIrrelevant
	ClassAmbiguous
)

func (c Classification) String() string {
	switch c {
	case ClassIrrelevant:
		return "IRRELEVANT"
	case ClassAmbiguous:
		return "AMBIGUOUS"
	default:
		return "RELEVANT"
	}
}

// ErrCacheMiss is returned by Cache implementations when no entry exists
// for the question.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores successful Responses keyed by the question's normalized
// form. Implementations own normalization and expiry.
type Cache interface {
	Get(ctx context.Context, question string) (*Response, error)
	Set(ctx context.Context, question string, response *Response) error
}

// SchemaRetriever selects schema context for a question.
type SchemaRetriever interface {
	RelevantTables(ctx context.Context, question string, k int) ([]string, error)
	DDL(ctx context.Context, names []string) (string, error)
	Tables() []schema.Table
}

// Executor runs one SQL statement against the relational store.
type Executor interface {
	Execute(ctx context.Context, sql string) (*store.Result, error)
	Dialect() string
}
