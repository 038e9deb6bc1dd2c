package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Identity names the client behind a validated API key.
type Identity struct {
	Client string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type keyEntry struct {
	key      string
	identity Identity
}

// StaticAPIKeyValidator resolves keys from a fixed spec of the form
// "key:client,key2:client2".
type StaticAPIKeyValidator struct {
	entries []keyEntry
}

func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	seen := map[string]struct{}{}
	for _, entry := range strings.Split(spec, ",") {
		key, client, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || strings.Contains(client, ":") {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:client", entry)
		}
		key = strings.TrimSpace(key)
		client = strings.TrimSpace(client)
		if key == "" || client == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/client", entry)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate static key for client %q", client)
		}
		seen[key] = struct{}{}
		validator.entries = append(validator.entries, keyEntry{key: key, identity: Identity{Client: client}})
	}

	return validator, nil
}

// Validate compares the presented key against every configured entry in
// constant time per candidate.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	presented := []byte(apiKey)
	for _, entry := range v.entries {
		if subtle.ConstantTimeCompare([]byte(entry.key), presented) == 1 {
			return entry.identity, true
		}
	}
	return Identity{}, false
}
