package memory

import (
	"context"
	"testing"
	"time"

	"contest-variant-service/internal/domain"
)

func TestVariantRepositoryCaches(t *testing.T) {
	loader := &countingLoader{VariantLoader: seededLoader()}
	repo := NewVariantRepository(loader, time.Minute)

	if _, _, err := repo.Schema(context.Background(), "C1", "C1-A"); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, _, err := repo.Schema(context.Background(), "C1", "C1-A"); err != nil {
		t.Fatalf("schema 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	if _, _, err := repo.Schema(context.Background(), "C1", "C1-missing"); err != domain.ErrVariantNotFound {
		t.Fatalf("expected variant-not-found, got %v", err)
	}
}

type countingLoader struct {
	VariantLoader
	calls int
}

func (l *countingLoader) LoadVariant(ctx context.Context, contestID, variantID string) (domain.Variant, domain.Solution, error) {
	l.calls++
	return l.VariantLoader.LoadVariant(ctx, contestID, variantID)
}

func seededLoader() *StaticVariantLoader {
	loader := NewStaticVariantLoader()
	loader.Put(domain.Variant{
		ID:        "C1-A",
		ContestID: "C1",
		Schema: domain.Schema{
			1: {PresentedID: 1, OriginalID: 1, Type: domain.OpenNumber, Points: domain.Points{Correct: 3, Blank: 0, Wrong: 0}},
		},
	}, domain.Solution{
		1: {Kind: domain.AnswerNumber, Number: 4},
	})
	return loader
}
