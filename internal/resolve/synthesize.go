package resolve

import (
	"context"
	"fmt"
	"strings"
)

// synthesizeSQL asks the generator for one SQL candidate. priorError is
// the verbatim driver message from the previous attempt, empty on the
// first one.
func (r *Resolver) synthesizeSQL(ctx context.Context, question, ddl, priorError string) (string, error) {
	dialect := r.executor.Dialect()
	var sb strings.Builder
	sb.WriteString("You are an expert ")
	sb.WriteString(dialect)
	sb.WriteString(" developer. Given the following database schema:\n\n")
	sb.WriteString(ddl)
	sb.WriteString("\n\nGenerate a valid ")
	sb.WriteString(dialect)
	sb.WriteString(" query to answer the user's question. ")
	sb.WriteString("When asked for 'Top N' results, use DENSE_RANK() logic to account for ties, rather than simple LIMIT. ")
	sb.WriteString("Return ONLY the SQL query, no markdown formatting, no backticks.")
	if priorError != "" {
		sb.WriteString("\n\nThe previous query failed with this error: ")
		sb.WriteString(priorError)
		sb.WriteString(". Please fix it.")
	}

	raw, err := r.generator.Generate(ctx, sb.String(), question)
	if err != nil {
		return "", fmt.Errorf("synthesize sql: %w", err)
	}
	sqlText := stripMarkdownFences(raw)
	if sqlText == "" {
		return "", fmt.Errorf("model returned empty sql")
	}
	return sqlText, nil
}

// stripMarkdownFences removes a ```sql ... ``` wrapper that models emit
// despite being told not to.
func stripMarkdownFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```sql")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
