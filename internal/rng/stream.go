// Package rng provides the deterministic pseudo-random stream every
// variant-related computation is built on. All draws are a pure function
// of (seed, draw index), so two streams constructed from the same seed
// produce identical sequences on any host.
package rng

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Stream is a seeded deterministic source. Not safe for concurrent use;
// callers construct one stream per deterministic computation.
type Stream struct {
	seed    []byte
	counter uint64
}

// New builds a stream from an arbitrary string seed.
func New(seed string) *Stream {
	return &Stream{seed: []byte(seed)}
}

// Uint64 returns the next 64-bit draw: the leading bytes of
// BLAKE2b-256(seed || bigEndian(counter)), with the counter advancing
// monotonically. The keyed-hash construction keeps the stream unbounded
// and unpredictable without the seed.
func (s *Stream) Uint64() uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.counter)
	s.counter++

	h, _ := blake2b.New256(nil)
	h.Write(s.seed)
	h.Write(buf[:])
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// UniformInt returns an integer in [min, max] inclusive, uniformly
// distributed. Rejection sampling over the full 64-bit draw avoids the
// modulo bias of hash%range. Panics if max < min.
func (s *Stream) UniformInt(min, max int) int {
	if max < min {
		panic("rng: UniformInt called with max < min")
	}
	span := uint64(max-min) + 1
	if span == 0 { // full 64-bit range
		return min + int(s.Uint64())
	}
	// Reject draws below 2^64 mod span; the remaining range is an exact
	// multiple of span, so the residue is uniform.
	threshold := -span % span
	for {
		v := s.Uint64()
		if v >= threshold {
			return min + int(v%span)
		}
	}
}

// Choice returns a uniformly drawn element of xs. Panics on an empty slice.
func Choice[T any](s *Stream, xs []T) T {
	return xs[s.UniformInt(0, len(xs)-1)]
}

// Shuffle permutes xs in place with a Fisher-Yates walk from the last
// element down to the first. The iteration order is part of the contract:
// it fixes which permutation a given seed yields.
func Shuffle[T any](s *Stream, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j := s.UniformInt(0, i)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// Sample returns k distinct elements of xs without replacement, in the
// order the draws produce them. Panics if k exceeds len(xs).
func Sample[T any](s *Stream, xs []T, k int) []T {
	if k > len(xs) {
		panic("rng: Sample size exceeds population")
	}
	pool := make([]T, len(xs))
	copy(pool, xs)
	out := make([]T, 0, k)
	for len(out) < k {
		i := s.UniformInt(0, len(pool)-1)
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}
	return out
}
