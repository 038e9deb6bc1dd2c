package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

// Config bounds the pipeline. RetryBudget is the number of correction
// rounds after the first failed execution, so the generator is consulted
// at most RetryBudget+1 times per resolution.
type Config struct {
	RetryBudget int
	RetrievalK  int
}

// Dependencies carries the collaborators the resolver orchestrates.
type Dependencies struct {
	Generator llm.Generator
	Retriever SchemaRetriever
	Executor  Executor
	Cache     Cache
	Logger    *slog.Logger
}

// Resolver drives a question through classification, schema retrieval,
// SQL generation, execution with bounded correction, and answer
// synthesis.
type Resolver struct {
	generator   llm.Generator
	retriever   SchemaRetriever
	executor    Executor
	cache       Cache
	logger      *slog.Logger
	retryBudget int
	retrievalK  int
	refusal     string
}

func New(cfg Config, deps Dependencies) (*Resolver, error) {
	if cfg.RetryBudget < 0 {
		return nil, fmt.Errorf("retry budget must not be negative")
	}
	if cfg.RetrievalK < 1 {
		return nil, fmt.Errorf("retrieval k must be at least 1")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("schema retriever is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		generator:   deps.Generator,
		retriever:   deps.Retriever,
		executor:    deps.Executor,
		cache:       deps.Cache,
		logger:      logger,
		retryBudget: cfg.RetryBudget,
		retrievalK:  cfg.RetrievalK,
		refusal:     refusalAnswer(deps.Retriever.Tables()),
	}, nil
}

// Resolve answers one question. It never returns an error: every failure
// mode maps to a Response so callers always have something to show the
// user.
func (r *Resolver) Resolve(ctx context.Context, question string) Response {
	start := time.Now()

	if cached, err := r.cache.Get(ctx, question); err == nil {
		observability.ObserveCacheLookup(true)
		observability.ObserveResolution(observability.OutcomeCacheHit, time.Since(start))
		r.logger.InfoContext(ctx, "cache hit", slog.String("question", question))
		return *cached
	} else if errors.Is(err, ErrCacheMiss) {
		observability.ObserveCacheLookup(false)
	} else {
		// Caching is best effort. A broken backend must not block resolution.
		r.logger.WarnContext(ctx, "cache read failed", slog.String("error", err.Error()))
	}

	classification, err := r.classify(ctx, question)
	if err != nil {
		return r.serviceFailure(ctx, start, err, "")
	}
	observability.ObserveClassification(classification.String())
	r.logger.InfoContext(ctx, "question classified",
		slog.String("classification", classification.String()),
	)

	switch classification {
	case ClassIrrelevant:
		observability.ObserveResolution(observability.OutcomeIrrelevant, time.Since(start))
		return Response{
			Answer:    r.refusal,
			SQL:       NoExecutedSQL,
			Reasoning: "Query classified as irrelevant.",
		}
	case ClassAmbiguous:
		clarification, err := r.clarify(ctx, question)
		if err != nil {
			return r.serviceFailure(ctx, start, err, "")
		}
		observability.ObserveResolution(observability.OutcomeClarification, time.Since(start))
		return Response{
			Answer:             clarification,
			SQL:                NoExecutedSQL,
			Reasoning:          "Query classified as ambiguous; clarification requested.",
			NeedsClarification: true,
		}
	}

	tables, err := r.retriever.RelevantTables(ctx, question, r.retrievalK)
	if err != nil {
		// Generation can still proceed on an empty schema context; the
		// model just works without table definitions.
		r.logger.WarnContext(ctx, "schema retrieval failed", slog.String("error", err.Error()))
	}
	ddl, err := r.retriever.DDL(ctx, tables)
	if err != nil {
		r.logger.WarnContext(ctx, "schema ddl lookup incomplete", slog.String("error", err.Error()))
	}

	var (
		sqlText   string
		result    *store.Result
		lastError string
	)
	executed := false
	attempts := r.retryBudget + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		observability.ObserveGenerationAttempt()
		sqlText, err = r.synthesizeSQL(ctx, question, ddl, lastError)
		if err != nil {
			return r.serviceFailure(ctx, start, err, "")
		}
		r.logger.InfoContext(ctx, "generated sql",
			slog.Int("attempt", attempt),
			slog.String("sql", sqlText),
		)
		result, err = r.executor.Execute(ctx, sqlText)
		if err == nil {
			executed = true
			break
		}
		lastError = err.Error()
		r.logger.WarnContext(ctx, "sql execution failed",
			slog.Int("attempt", attempt),
			slog.String("error", lastError),
		)
	}
	if !executed {
		observability.ObserveResolution(observability.OutcomePersistentFailure, time.Since(start))
		return Response{
			Answer:    fmt.Sprintf("I failed to generate a valid query after %d retries.", r.retryBudget),
			SQL:       sqlText,
			Reasoning: "Persistent Error: " + lastError,
		}
	}

	answer, err := r.answer(ctx, question, sqlText, result)
	if err != nil {
		return r.serviceFailure(ctx, start, err, sqlText)
	}

	response := Response{
		Answer:    answer,
		SQL:       sqlText,
		Reasoning: fmt.Sprintf("Retrieved tables: %s. Generated SQL. Executed successfully.", strings.Join(tables, ", ")),
	}
	if err := r.cache.Set(ctx, question, &response); err != nil {
		r.logger.WarnContext(ctx, "cache write failed", slog.String("error", err.Error()))
	}
	observability.ObserveResolution(observability.OutcomeSuccess, time.Since(start))
	return response
}

// serviceFailure terminates a resolution whose generator call failed or
// returned unusable output. executedSQL is empty unless a statement
// already ran this resolution.
func (r *Resolver) serviceFailure(ctx context.Context, start time.Time, err error, executedSQL string) Response {
	observability.ObserveResolution(observability.OutcomeServiceError, time.Since(start))
	r.logger.ErrorContext(ctx, "language model call failed", slog.String("error", err.Error()))
	sqlText := executedSQL
	if sqlText == "" {
		sqlText = NoExecutedSQL
	}
	return Response{
		Answer:    "The language model service is currently unavailable. Please try again later.",
		SQL:       sqlText,
		Reasoning: "Service Error: " + err.Error(),
	}
}
