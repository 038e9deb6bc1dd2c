package llm

import "context"

// Generator is the boundary to the hosted text-generation service: one
// system instruction plus one user text in, one text out. A non-nil error
// means the upstream call could not be completed; callers treat that as
// fatal for the current resolution.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userText string) (string, error)
}
