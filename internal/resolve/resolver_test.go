package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

type generatorCall struct {
	system string
	user   string
}

type scriptedGenerator struct {
	calls  []generatorCall
	script func(call generatorCall) (string, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, systemPrompt, userText string) (string, error) {
	call := generatorCall{system: systemPrompt, user: userText}
	g.calls = append(g.calls, call)
	return g.script(call)
}

// sqlCalls returns the subset of generator calls that asked for SQL.
func (g *scriptedGenerator) sqlCalls() []generatorCall {
	var out []generatorCall
	for _, call := range g.calls {
		if strings.Contains(call.system, "expert") {
			out = append(out, call)
		}
	}
	return out
}

type fakeExecutor struct {
	dialect  string
	executed []string
	run      func(sqlText string) (*store.Result, error)
}

func (e *fakeExecutor) Execute(_ context.Context, sqlText string) (*store.Result, error) {
	e.executed = append(e.executed, sqlText)
	return e.run(sqlText)
}

func (e *fakeExecutor) Dialect() string {
	if e.dialect == "" {
		return "SQLite"
	}
	return e.dialect
}

type fakeRetriever struct {
	names    []string
	ddl      string
	namesErr error
	ddlErr   error
}

func (f *fakeRetriever) RelevantTables(context.Context, string, int) ([]string, error) {
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	return f.names, nil
}

func (f *fakeRetriever) DDL(context.Context, []string) (string, error) {
	return f.ddl, f.ddlErr
}

func (f *fakeRetriever) Tables() []schema.Table {
	return schema.DefaultTables()
}

type recordingCache struct {
	entries map[string]*Response
	gets    int
	sets    int
	getErr  error
	setErr  error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*Response{}}
}

func (c *recordingCache) Get(_ context.Context, question string) (*Response, error) {
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	if response, ok := c.entries[question]; ok {
		return response, nil
	}
	return nil, ErrCacheMiss
}

func (c *recordingCache) Set(_ context.Context, question string, response *Response) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[question] = response
	return nil
}

func happyScript(sqlLiteral, answerText string) func(generatorCall) (string, error) {
	return func(call generatorCall) (string, error) {
		switch {
		case strings.Contains(call.system, "classify"):
			return "RELEVANT", nil
		case strings.Contains(call.system, "expert"):
			return sqlLiteral, nil
		case strings.Contains(call.system, "data analyst"):
			return answerText, nil
		default:
			return "", fmt.Errorf("unexpected system prompt: %s", call.system)
		}
	}
}

func okExecutor() *fakeExecutor {
	return &fakeExecutor{run: func(string) (*store.Result, error) {
		return &store.Result{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}}, nil
	}}
}

func newTestResolver(t *testing.T, cfg Config, deps Dependencies) *Resolver {
	t.Helper()
	if deps.Retriever == nil {
		deps.Retriever = &fakeRetriever{
			names: []string{"customers"},
			ddl:   "CREATE TABLE customers (id INTEGER, name TEXT, region TEXT);",
		}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return resolver
}

func TestNewValidatesConfigAndDependencies(t *testing.T) {
	gen := &scriptedGenerator{script: happyScript("SELECT 1", "ok")}
	retriever := &fakeRetriever{}
	exec := okExecutor()
	cache := newRecordingCache()

	cases := []struct {
		name string
		cfg  Config
		deps Dependencies
	}{
		{"negative retry budget", Config{RetryBudget: -1, RetrievalK: 3}, Dependencies{Generator: gen, Retriever: retriever, Executor: exec, Cache: cache}},
		{"zero retrieval k", Config{RetryBudget: 2}, Dependencies{Generator: gen, Retriever: retriever, Executor: exec, Cache: cache}},
		{"missing generator", Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{Retriever: retriever, Executor: exec, Cache: cache}},
		{"missing retriever", Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{Generator: gen, Executor: exec, Cache: cache}},
		{"missing executor", Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{Generator: gen, Retriever: retriever, Cache: cache}},
		{"missing cache", Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{Generator: gen, Retriever: retriever, Executor: exec}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, tc.deps); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestResolveCacheHitShortCircuits(t *testing.T) {
	cached := &Response{Answer: "There are 3 customers.", SQL: "SELECT COUNT(*) FROM customers", Reasoning: "Retrieved tables: customers. Generated SQL. Executed successfully."}
	cache := newRecordingCache()
	cache.entries["How many customers are there?"] = cached

	gen := &scriptedGenerator{script: func(generatorCall) (string, error) {
		return "", errors.New("generator must not be called on a cache hit")
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if response != *cached {
		t.Fatalf("expected cached response, got %+v", response)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("expected zero generator calls, got %d", len(gen.calls))
	}
	if len(exec.executed) != 0 {
		t.Fatalf("expected zero executions, got %d", len(exec.executed))
	}
}

func TestResolveSuccessCachesResponse(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: happyScript("SELECT COUNT(*) FROM customers", "There are 3 customers.")}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if response.Answer != "There are 3 customers." {
		t.Fatalf("unexpected answer: %q", response.Answer)
	}
	if response.SQL != "SELECT COUNT(*) FROM customers" {
		t.Fatalf("unexpected sql: %q", response.SQL)
	}
	if response.Reasoning != "Retrieved tables: customers. Generated SQL. Executed successfully." {
		t.Fatalf("unexpected reasoning: %q", response.Reasoning)
	}
	if response.NeedsClarification {
		t.Fatalf("unexpected clarification flag")
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
	if _, ok := cache.entries["How many customers are there?"]; !ok {
		t.Fatalf("response was not stored in the cache")
	}
}

func TestResolveIrrelevantRefusesAndSkipsCache(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: func(generatorCall) (string, error) {
		return "IRRELEVANT", nil
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "What is the capital of France?")

	want := "I can only answer questions related to the e-commerce database (customers, products, orders, order_items)."
	if response.Answer != want {
		t.Fatalf("unexpected refusal: %q", response.Answer)
	}
	if response.SQL != NoExecutedSQL {
		t.Fatalf("expected %q sql, got %q", NoExecutedSQL, response.SQL)
	}
	if response.NeedsClarification {
		t.Fatalf("unexpected clarification flag")
	}
	if len(exec.executed) != 0 {
		t.Fatalf("irrelevant question must not execute sql")
	}
	if cache.sets != 0 {
		t.Fatalf("irrelevant responses must not be cached, got %d writes", cache.sets)
	}
}

func TestResolveAmbiguousRequestsClarification(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: func(call generatorCall) (string, error) {
		if strings.Contains(call.system, "classify") {
			return "ambiguous", nil
		}
		return "Which time period do you mean?", nil
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "Show me the numbers")

	if !response.NeedsClarification {
		t.Fatalf("expected needs_clarification to be set")
	}
	if response.Answer != "Which time period do you mean?" {
		t.Fatalf("unexpected clarification: %q", response.Answer)
	}
	if response.SQL != NoExecutedSQL {
		t.Fatalf("expected %q sql, got %q", NoExecutedSQL, response.SQL)
	}
	if cache.sets != 0 {
		t.Fatalf("ambiguous responses must not be cached")
	}
}

func TestResolveRetriesUntilBudgetExhausted(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: happyScript("SELECT regionn FROM customers", "unused")}
	exec := &fakeExecutor{run: func(string) (*store.Result, error) {
		return nil, errors.New("no such column: regionn")
	}}
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "List customer regions")

	if got := len(gen.sqlCalls()); got != 3 {
		t.Fatalf("expected exactly 3 generation attempts, got %d", got)
	}
	if len(exec.executed) != 3 {
		t.Fatalf("expected exactly 3 executions, got %d", len(exec.executed))
	}
	if response.Answer != "I failed to generate a valid query after 2 retries." {
		t.Fatalf("unexpected answer: %q", response.Answer)
	}
	if response.Reasoning != "Persistent Error: no such column: regionn" {
		t.Fatalf("unexpected reasoning: %q", response.Reasoning)
	}
	if response.SQL != "SELECT regionn FROM customers" {
		t.Fatalf("expected last attempted sql, got %q", response.SQL)
	}
	if cache.sets != 0 {
		t.Fatalf("failed resolutions must not be cached")
	}
}

func TestResolveCorrectsAfterSingleFailure(t *testing.T) {
	cache := newRecordingCache()
	sqlAttempt := 0
	gen := &scriptedGenerator{script: func(call generatorCall) (string, error) {
		switch {
		case strings.Contains(call.system, "classify"):
			return "RELEVANT", nil
		case strings.Contains(call.system, "expert"):
			sqlAttempt++
			if sqlAttempt == 1 {
				return "SELECT name FROM cstmrs", nil
			}
			return "SELECT name FROM customers", nil
		default:
			return "Alice, Bob and Carol.", nil
		}
	}}
	exec := &fakeExecutor{run: func(sqlText string) (*store.Result, error) {
		if strings.Contains(sqlText, "cstmrs") {
			return nil, errors.New("no such table: cstmrs")
		}
		return &store.Result{Columns: []string{"name"}, Rows: [][]any{{"Alice"}, {"Bob"}, {"Carol"}}}, nil
	}}
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "List all customer names")

	calls := gen.sqlCalls()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 generation attempts, got %d", len(calls))
	}
	if !strings.Contains(calls[1].system, "The previous query failed with this error: no such table: cstmrs") {
		t.Fatalf("correction prompt is missing the driver error: %q", calls[1].system)
	}
	if strings.Contains(calls[0].system, "previous query failed") {
		t.Fatalf("first attempt must not carry a correction clause")
	}
	if response.SQL != "SELECT name FROM customers" {
		t.Fatalf("unexpected sql: %q", response.SQL)
	}
	if response.Answer != "Alice, Bob and Carol." {
		t.Fatalf("unexpected answer: %q", response.Answer)
	}
	if cache.sets != 1 {
		t.Fatalf("corrected success must be cached")
	}
}

func TestResolveGatewayFailureIsTerminal(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: func(generatorCall) (string, error) {
		return "", errors.New("connect: connection refused")
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if response.Answer != "The language model service is currently unavailable. Please try again later." {
		t.Fatalf("unexpected answer: %q", response.Answer)
	}
	if response.SQL != NoExecutedSQL {
		t.Fatalf("expected %q sql, got %q", NoExecutedSQL, response.SQL)
	}
	if !strings.Contains(response.Reasoning, "Service Error:") || !strings.Contains(response.Reasoning, "connection refused") {
		t.Fatalf("unexpected reasoning: %q", response.Reasoning)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("gateway failures must not be retried, got %d calls", len(gen.calls))
	}
	if len(exec.executed) != 0 {
		t.Fatalf("nothing should execute after a gateway failure")
	}
	if cache.sets != 0 {
		t.Fatalf("failures must not be cached")
	}
}

func TestResolveAnswerStageFailureKeepsExecutedSQL(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: func(call generatorCall) (string, error) {
		switch {
		case strings.Contains(call.system, "classify"):
			return "RELEVANT", nil
		case strings.Contains(call.system, "expert"):
			return "SELECT COUNT(*) FROM orders", nil
		default:
			return "", errors.New("read: connection reset")
		}
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many orders are there?")

	if response.SQL != "SELECT COUNT(*) FROM orders" {
		t.Fatalf("expected the executed sql to be reported, got %q", response.SQL)
	}
	if !strings.Contains(response.Reasoning, "Service Error:") {
		t.Fatalf("unexpected reasoning: %q", response.Reasoning)
	}
	if cache.sets != 0 {
		t.Fatalf("failures must not be cached")
	}
}

func TestResolveCacheBackendFailuresAreNonFatal(t *testing.T) {
	cache := newRecordingCache()
	cache.getErr = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	cache.setErr = cache.getErr
	gen := &scriptedGenerator{script: happyScript("SELECT COUNT(*) FROM customers", "There are 3 customers.")}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if response.Answer != "There are 3 customers." {
		t.Fatalf("cache backend failure must not block resolution, got %+v", response)
	}
}

func TestResolveCoercesUnknownClassification(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: func(call generatorCall) (string, error) {
		if strings.Contains(call.system, "classify") {
			return "I think this is RELEVANT, probably.", nil
		}
		return happyScript("SELECT COUNT(*) FROM customers", "There are 3 customers.")(call)
	}}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen, Executor: exec, Cache: cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if len(exec.executed) != 1 {
		t.Fatalf("unparseable classification must fall through to generation")
	}
	if response.Answer != "There are 3 customers." {
		t.Fatalf("unexpected answer: %q", response.Answer)
	}
}

func TestResolveProceedsWithoutSchemaContext(t *testing.T) {
	cache := newRecordingCache()
	gen := &scriptedGenerator{script: happyScript("SELECT COUNT(*) FROM customers", "There are 3 customers.")}
	exec := okExecutor()
	resolver := newTestResolver(t, Config{RetryBudget: 2, RetrievalK: 3}, Dependencies{
		Generator: gen,
		Retriever: &fakeRetriever{namesErr: errors.New("index closed")},
		Executor:  exec,
		Cache:     cache,
	})

	response := resolver.Resolve(context.Background(), "How many customers are there?")

	if response.Answer != "There are 3 customers." {
		t.Fatalf("retrieval failure must not block resolution, got %+v", response)
	}
	if len(gen.sqlCalls()) != 1 {
		t.Fatalf("expected generation to proceed without schema context")
	}
}

func TestParseClassification(t *testing.T) {
	cases := []struct {
		raw  string
		want Classification
	}{
		{"RELEVANT", ClassRelevant},
		{"irrelevant", ClassIrrelevant},
		{" AMBIGUOUS \n", ClassAmbiguous},
		{"RELEVANT.", ClassRelevant},
		{"no idea", ClassRelevant},
		{"", ClassRelevant},
	}
	for _, tc := range cases {
		if got := parseClassification(tc.raw); got != tc.want {
			t.Fatalf("parseClassification(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SELECT 1;", "SELECT 1;"},
		{"  SELECT 1;\n", "SELECT 1;"},
		{"```sql\nSELECT 1;\n```", "SELECT 1;"},
		{"```\nSELECT 1;\n```", "SELECT 1;"},
		{"```sql\nSELECT name\nFROM customers;\n```", "SELECT name\nFROM customers;"},
	}
	for _, tc := range cases {
		if got := stripMarkdownFences(tc.in); got != tc.want {
			t.Fatalf("stripMarkdownFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
