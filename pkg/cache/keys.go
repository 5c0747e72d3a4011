package cache

// CRITICAL INVARIANT: CANONICAL ENCODING
// CanonicalHash must produce the same digest for semantically equal inputs.
// Values are encoded to JSON, decoded into generic maps and re-encoded, so map
// keys end up sorted regardless of insertion order. Callers are responsible for
// sorting slices whose order carries no meaning before hashing.
//
// Hash format version: v1
//
// CHANGING THIS ENCODING INVALIDATES EVERY CACHED ENTRY. Bump the version
// segment of the keys built on top of it when it changes.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalHash returns the hex SHA-256 of v's canonical JSON encoding.
func CanonicalHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value for hashing: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("failed to normalize value for hashing: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode value for hashing: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// JoinKey joins non-empty key segments with ':'.
func JoinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// TableTag returns the tag for entries computed from table.
func TableTag(table string) string {
	return "table:" + table
}
