package resolve

import (
	"context"
	"fmt"
	"strings"
)

const classifierSystemPrompt = `You classify user questions aimed at an e-commerce SQL database.
Reply with exactly one of these labels:
- RELEVANT: the question can be answered from the database (e.g., "How many orders were delivered in March?")
- IRRELEVANT: the question has nothing to do with the database (e.g., "What is the capital of France?")
- AMBIGUOUS: the question is about the data but too vague to write a query for (e.g., "Show me the numbers")
Return ONLY the label, nothing else.`

func (r *Resolver) classify(ctx context.Context, question string) (Classification, error) {
	raw, err := r.generator.Generate(ctx, classifierSystemPrompt, question)
	if err != nil {
		return ClassRelevant, fmt.Errorf("classify question: %w", err)
	}
	return parseClassification(raw), nil
}

// parseClassification coerces model output onto the closed label set.
// Anything that is not an exact label, ignoring case and surrounding
// whitespace, maps to RELEVANT so a formatting glitch never blocks a
// legitimate question.
func parseClassification(raw string) Classification {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IRRELEVANT":
		return ClassIrrelevant
	case "AMBIGUOUS":
		return ClassAmbiguous
	default:
		return ClassRelevant
	}
}
