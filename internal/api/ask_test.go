package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/resolve"
)

func TestAskReturnsResolvedResponse(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	resolver := &fakeResolver{response: resolve.Response{
		Answer:    "There are 3 customers.",
		SQL:       "SELECT COUNT(*) FROM customers",
		Reasoning: "Retrieved tables: customers. Generated SQL. Executed successfully.",
	}}
	h := NewHandler(cfg, Dependencies{Resolver: resolver})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"  How many customers are there? "}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}

	var body resolve.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body != resolver.response {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(resolver.questions) != 1 || resolver.questions[0] != "How many customers are there?" {
		t.Fatalf("resolver received %#v, want the trimmed question", resolver.questions)
	}
}

func TestAskValidatesRequest(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	resolver := &fakeResolver{}
	h := NewHandler(cfg, Dependencies{Resolver: resolver})

	cases := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"question":`, "INVALID_JSON"},
		{"unknown field", `{"question":"x","mode":"fast"}`, "INVALID_JSON"},
		{"empty body", ``, "INVALID_JSON"},
		{"blank question", `{"question":"   "}`, "QUESTION_REQUIRED"},
		{"missing question", `{}`, "QUESTION_REQUIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error_code"] != tc.wantCode {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.wantCode)
			}
		})
	}
	if len(resolver.questions) != 0 {
		t.Fatalf("invalid requests must not reach the resolver: %#v", resolver.questions)
	}
}

func TestAskWithoutResolverIsNotImplemented(t *testing.T) {
	cfg, err := config.Load("sqlpilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
