// Package registry builds the secret-keyed lookup table that assigns
// variants to students. Assignment depends only on (contest secret,
// identity hash), never on registration order, so a student's variant is
// always re-derivable and cannot be guessed without the secret.
package registry

import (
	"fmt"
	"strings"

	"contest-variant-service/internal/rng"
)

// Size is the number of bucket entries, one per 3-hex-digit code.
const Size = 4096

// Table maps every code 000-FFF to a variant id. It is immutable once
// built; when any input changes the whole table is rebuilt, never
// patched.
type Table struct {
	contestID string
	entries   map[string]string
}

// Build constructs the table for (contestID, secret, variantIDs). Entries
// are drawn in strictly ascending code order from a stream seeded with
// the contest secret; each draw is independent, so a variant id may
// recur across buckets.
func Build(contestID, secret string, variantIDs []string) (*Table, error) {
	if len(variantIDs) == 0 {
		return nil, fmt.Errorf("registry: contest %s has no variants", contestID)
	}
	stream := rng.New(secret + "-" + contestID + "-variantMappings")
	entries := make(map[string]string, Size)
	for i := 0; i < Size; i++ {
		entries[fmt.Sprintf("%03X", i)] = rng.Choice(stream, variantIDs)
	}
	return &Table{contestID: contestID, entries: entries}, nil
}

// ContestID reports which contest the table was built for.
func (t *Table) ContestID() string { return t.contestID }

// Lookup returns the variant for a 3-hex-digit code.
func (t *Table) Lookup(code string) (string, bool) {
	v, ok := t.entries[strings.ToUpper(code)]
	return v, ok
}

// VariantForHash selects the bucket addressed by the first three hex
// characters of a normalized identity hash.
func (t *Table) VariantForHash(identityHash string) (string, error) {
	if len(identityHash) < 3 {
		return "", fmt.Errorf("registry: identity hash %q too short", identityHash)
	}
	v, ok := t.Lookup(identityHash[:3])
	if !ok {
		return "", fmt.Errorf("registry: no bucket for code %q", identityHash[:3])
	}
	return v, nil
}

// Entries returns a copy of the full table, for export tooling.
func (t *Table) Entries() map[string]string {
	out := make(map[string]string, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}
