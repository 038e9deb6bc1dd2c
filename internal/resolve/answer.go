package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

const answerSystemPrompt = "You are a helpful data analyst for an e-commerce business."

const clarifierSystemPrompt = "The user asked a question about an e-commerce database that is too vague to turn into SQL. " +
	"Ask exactly one short clarifying question that would let an analyst write the query. " +
	"Return ONLY the question."

// answer turns the executed rows into a natural language reply.
func (r *Resolver) answer(ctx context.Context, question, sqlText string, result *store.Result) (string, error) {
	rows, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result rows: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("User Question: ")
	sb.WriteString(question)
	sb.WriteString("\nSQL Query: ")
	sb.WriteString(sqlText)
	sb.WriteString("\nSQL Result: ")
	sb.Write(rows)
	sb.WriteString("\n\nPlease provide a concise natural language answer based on the result. ")
	sb.WriteString("Format any monetary values with the appropriate currency symbol (e.g., $).")

	reply, err := r.generator.Generate(ctx, answerSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (r *Resolver) clarify(ctx context.Context, question string) (string, error) {
	reply, err := r.generator.Generate(ctx, clarifierSystemPrompt, question)
	if err != nil {
		return "", fmt.Errorf("generate clarification: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func refusalAnswer(tables []schema.Table) string {
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	return fmt.Sprintf("I can only answer questions related to the e-commerce database (%s).", strings.Join(names, ", "))
}
