package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/auth"
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "query resolution is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	ctx := r.Context()
	if deps.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.ResolveTimeout)
		defer cancel()
	}

	response := deps.Resolver.Resolve(ctx, question)
	if deps.Logger != nil {
		attrs := []slog.Attr{slog.Bool("needs_clarification", response.NeedsClarification)}
		if client := auth.ClientFromContext(r.Context()); client != "" {
			attrs = append(attrs, slog.String("client", client))
		}
		deps.Logger.LogAttrs(r.Context(), slog.LevelInfo, "ask served", attrs...)
	}
	writeJSON(w, http.StatusOK, response)
}
