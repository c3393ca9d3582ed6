package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/infra/memory"
)

func TestVariantRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{VariantLoader: sampleLoader()}
	repo := NewVariantRepository(client, loader, time.Minute)

	schema, solution, err := repo.Schema(context.Background(), "C1", "C1-A")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(schema) != 1 || solution[1].Choice != "B" {
		t.Fatalf("unexpected cached artifacts: %v %v", schema, solution)
	}
	if !mr.Exists("variant:C1:C1-A:schema") || !mr.Exists("variant:C1:C1-A:solution") {
		t.Fatalf("expected redis keys to be set")
	}

	// Second call should hit cache, loader not incremented.
	_, _, _ = repo.Schema(context.Background(), "C1", "C1-A")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestVariantRepositoryMissPropagates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewVariantRepository(newClient(mr), sampleLoader(), time.Minute)
	if _, _, err := repo.Schema(context.Background(), "C1", "C1-missing"); err != domain.ErrVariantNotFound {
		t.Fatalf("expected variant-not-found, got %v", err)
	}
}

func TestRevocationStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRevocationStore(newClient(mr))

	revoked, err := store.IsRevoked(ctx, "session-1")
	if err != nil || revoked {
		t.Fatalf("expected fresh session, got revoked=%v err=%v", revoked, err)
	}
	if err := store.Revoke(ctx, "session-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, "session-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got revoked=%v err=%v", revoked, err)
	}
}

func TestMonitorStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewMonitorStore(newClient(mr), time.Minute)

	_ = store.GetOrCreate("part-1")
	if !mr.Exists("participation:monitor:part-1") {
		t.Fatalf("expected redis key to be set")
	}

	store.DeleteIfEmpty("part-1")
	if mr.Exists("participation:monitor:part-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

type countingLoader struct {
	memory.VariantLoader
	calls int
}

func (l *countingLoader) LoadVariant(ctx context.Context, contestID, variantID string) (domain.Variant, domain.Solution, error) {
	l.calls++
	return l.VariantLoader.LoadVariant(ctx, contestID, variantID)
}

func sampleLoader() *memory.StaticVariantLoader {
	loader := memory.NewStaticVariantLoader()
	loader.Put(domain.Variant{
		ID:        "C1-A",
		ContestID: "C1",
		IsOnline:  true,
		Schema: domain.Schema{
			1: {PresentedID: 1, OriginalID: 1, Type: domain.MultipleChoice, Options: []string{"A", "B", "C"}, Points: domain.Points{Correct: 5, Blank: 1, Wrong: -1}},
		},
	}, domain.Solution{
		1: {Kind: domain.AnswerChoice, Choice: "B"},
	})
	return loader
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
