package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/infra/memory"
)

// VariantRepository caches built variants in Redis and falls back to a
// loader on cache miss. The schema and the answer key live under
// separate keys so export tooling can read schemas without ever touching
// solutions:
//
//	SET variant:{contest}:{variant}:schema   {variant JSON}
//	SET variant:{contest}:{variant}:solution {solution JSON}
type VariantRepository struct {
	client *redis.Client
	loader memory.VariantLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewVariantRepository(client *redis.Client, loader memory.VariantLoader, ttl time.Duration) *VariantRepository {
	return &VariantRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type cachedVariant struct {
	Variant  domain.Variant  `json:"variant"`
	Solution domain.Solution `json:"solution"`
}

func (r *VariantRepository) Schema(ctx context.Context, contestID, variantID string) (domain.Schema, domain.Solution, error) {
	schemaKey := r.schemaKey(contestID, variantID)
	solutionKey := r.solutionKey(contestID, variantID)

	if entry, ok := r.fromCache(ctx, schemaKey, solutionKey); ok {
		return entry.Variant.Schema, entry.Solution, nil
	}

	result, err, _ := r.sf.Do(schemaKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if entry, ok := r.fromCache(ctx, schemaKey, solutionKey); ok {
			return entry, nil
		}

		variant, solution, err := r.loader.LoadVariant(ctx, contestID, variantID)
		if err != nil {
			return cachedVariant{}, err
		}

		entry := cachedVariant{Variant: variant, Solution: solution}
		variantJSON, err := json.Marshal(variant)
		if err != nil {
			return cachedVariant{}, fmt.Errorf("marshal variant: %w", err)
		}
		solutionJSON, err := json.Marshal(solution)
		if err != nil {
			return cachedVariant{}, fmt.Errorf("marshal solution: %w", err)
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.Set(ctx, schemaKey, variantJSON, ttl)
		pipe.Set(ctx, solutionKey, solutionJSON, ttl)
		_, _ = pipe.Exec(ctx)

		return entry, nil
	})
	if err != nil {
		return nil, nil, err
	}
	entry := result.(cachedVariant)
	return entry.Variant.Schema, entry.Solution, nil
}

func (r *VariantRepository) fromCache(ctx context.Context, schemaKey, solutionKey string) (cachedVariant, bool) {
	variantJSON, err := r.client.Get(ctx, schemaKey).Bytes()
	if err != nil {
		return cachedVariant{}, false
	}
	solutionJSON, err := r.client.Get(ctx, solutionKey).Bytes()
	if err != nil {
		return cachedVariant{}, false
	}
	var entry cachedVariant
	if err := json.Unmarshal(variantJSON, &entry.Variant); err != nil {
		return cachedVariant{}, false
	}
	if err := json.Unmarshal(solutionJSON, &entry.Solution); err != nil {
		return cachedVariant{}, false
	}
	return entry, true
}

func (r *VariantRepository) schemaKey(contestID, variantID string) string {
	return "variant:" + contestID + ":" + variantID + ":schema"
}

func (r *VariantRepository) solutionKey(contestID, variantID string) string {
	return "variant:" + contestID + ":" + variantID + ":solution"
}

func (r *VariantRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
