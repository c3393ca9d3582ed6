package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"contest-variant-service/internal/domain"
)

func TestBuildCoversEveryCodeExactlyOnce(t *testing.T) {
	table, err := Build("C1", "S", []string{"C1-A", "C1-B"})
	require.NoError(t, err)

	entries := table.Entries()
	require.Len(t, entries, Size)
	for i := 0; i < Size; i++ {
		code := fmt.Sprintf("%03X", i)
		v, ok := entries[code]
		require.True(t, ok, "code %s missing", code)
		require.Contains(t, []string{"C1-A", "C1-B"}, v)
	}
}

func TestBuildIsReproducible(t *testing.T) {
	variants := []string{"C1-A", "C1-B", "C1-C"}
	first, err := Build("C1", "S", variants)
	require.NoError(t, err)
	second, err := Build("C1", "S", variants)
	require.NoError(t, err)
	require.Equal(t, first.Entries(), second.Entries())

	otherSecret, err := Build("C1", "S2", variants)
	require.NoError(t, err)
	require.NotEqual(t, first.Entries(), otherSecret.Entries(),
		"a different secret must reshuffle the table")
}

func TestVariantForHashIsStable(t *testing.T) {
	table, err := Build("C1", "S", []string{"C1-A", "C1-B"})
	require.NoError(t, err)

	identity := []domain.IdentityField{
		{Name: "name", Value: "  Ada   Lovelace "},
		{Name: "class", Value: "4B"},
		{Name: "notes", Value: "window seat", Exempt: true},
	}
	hash := domain.IdentityHash(identity)

	v1, err := table.VariantForHash(hash)
	require.NoError(t, err)

	// Same normalized identity resolves to the same variant regardless of
	// field spacing, casing, or exempt noise.
	same := domain.IdentityHash([]domain.IdentityField{
		{Name: "class", Value: "4b"},
		{Name: "name", Value: "ADA LOVELACE"},
		{Name: "notes", Value: "different noise", Exempt: true},
	})
	require.Equal(t, hash, same)
	v2, err := table.VariantForHash(same)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	_, err = table.VariantForHash("AB")
	require.Error(t, err)
}

func TestBuildRejectsEmptyVariantSet(t *testing.T) {
	_, err := Build("C1", "S", nil)
	require.Error(t, err)
}
