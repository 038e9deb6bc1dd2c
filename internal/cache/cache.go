package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/resolve"
)

const keyPrefix = "sqlpilot:answers:"

// Normalize maps a question to its cache identity. Two questions that
// differ only in surrounding whitespace or letter case share one entry.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Key derives the backend key for a question. Hashing keeps keys bounded
// and printable regardless of question length or content.
func Key(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Noop disables caching. Every read misses and every write is dropped,
// so a deployment without a cache backend behaves like one with an
// always-cold cache.
type Noop struct{}

func (Noop) Get(context.Context, string) (*resolve.Response, error) {
	return nil, resolve.ErrCacheMiss
}

func (Noop) Set(context.Context, string, *resolve.Response) error {
	return nil
}
