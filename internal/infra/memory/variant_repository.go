package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"contest-variant-service/internal/domain"
)

// VariantLoader fetches a built variant and its answer key from a
// backing store.
type VariantLoader interface {
	LoadVariant(ctx context.Context, contestID, variantID string) (domain.Variant, domain.Solution, error)
}

// VariantRepository caches variant schemas with TTL to avoid repeated
// store hits. Variants are immutable once built, so the TTL exists only
// to pick up wholesale rebuilds.
type VariantRepository struct {
	loader VariantLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedVariant
}

type cachedVariant struct {
	variant   domain.Variant
	solution  domain.Solution
	expiresAt time.Time
}

func NewVariantRepository(loader VariantLoader, ttl time.Duration) *VariantRepository {
	return &VariantRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedVariant),
	}
}

func variantKey(contestID, variantID string) string {
	return contestID + "/" + variantID
}

func (r *VariantRepository) Schema(ctx context.Context, contestID, variantID string) (domain.Schema, domain.Solution, error) {
	key := variantKey(contestID, variantID)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.variant.Schema, entry.solution, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry, nil
		}
		r.mu.RUnlock()

		variant, solution, err := r.loader.LoadVariant(ctx, contestID, variantID)
		if err != nil {
			return cachedVariant{}, err
		}

		entry := cachedVariant{
			variant:   variant,
			solution:  solution,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Lock()
		r.cache[key] = entry
		r.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, nil, err
	}
	entry := result.(cachedVariant)
	return entry.variant.Schema, entry.solution, nil
}

func (r *VariantRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticVariantLoader is a simple loader backed by in-memory maps
// (useful for tests/demos).
type StaticVariantLoader struct {
	variants  map[string]domain.Variant
	solutions map[string]domain.Solution
}

func NewStaticVariantLoader() *StaticVariantLoader {
	return &StaticVariantLoader{
		variants:  make(map[string]domain.Variant),
		solutions: make(map[string]domain.Solution),
	}
}

// Put registers a built variant and its answer key.
func (l *StaticVariantLoader) Put(v domain.Variant, sol domain.Solution) {
	key := variantKey(v.ContestID, v.ID)
	l.variants[key] = v
	l.solutions[key] = sol
}

func (l *StaticVariantLoader) LoadVariant(_ context.Context, contestID, variantID string) (domain.Variant, domain.Solution, error) {
	key := variantKey(contestID, variantID)
	v, ok := l.variants[key]
	if !ok {
		return domain.Variant{}, nil, domain.ErrVariantNotFound
	}
	return v, l.solutions[key], nil
}
