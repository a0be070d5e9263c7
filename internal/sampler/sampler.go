// Package sampler implements randomized selection without replacement.
package sampler

import (
	"math/rand/v2"
)

// Source supplies uniformly distributed integers in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Default draws from the runtime seeded, concurrency safe global generator.
var Default Source = globalSource{}

// Seeded returns a deterministic source, for tests and reproducible runs.
func Seeded(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Uniform returns min(n, len(items)) items picked uniformly at random without replacement.
// With n >= len(items) the result is a random permutation of items. items is not modified.
func Uniform[T any](src Source, items []T, n int) []T {
	n = min(max(n, 0), len(items))

	remaining := append([]T(nil), items...)
	out := make([]T, 0, n)
	for range n {
		i := src.IntN(len(remaining))
		out = append(out, remaining[i])

		last := len(remaining) - 1
		remaining[i] = remaining[last]
		remaining = remaining[:last]
	}

	return out
}

// Group is one stratum of a stratified draw, e.g. the candidate pool of one subject.
type Group[T any] struct {
	Key  string
	Pool []T
}

// Targets splits total across groups: floor(total/groups) each, and one extra for the first total%groups groups.
func Targets(groups, total int) []int {
	if groups <= 0 {
		return nil
	}

	total = max(total, 0)
	base, remainder := total/groups, total%groups

	out := make([]int, groups)
	for i := range out {
		out[i] = base
		if i < remainder {
			out[i]++
		}
	}
	return out
}

// Stratified draws Targets(len(groups), total) items from each group and shuffles the union so groups interleave.
// A group whose pool is smaller than its target yields what it has; the shortfall is not moved to other groups.
func Stratified[T any](src Source, groups []Group[T], total int) []T {
	targets := Targets(len(groups), total)

	var picked []T
	for i, g := range groups {
		picked = append(picked, Uniform(src, g.Pool, min(targets[i], len(g.Pool)))...)
	}

	return Uniform(src, picked, len(picked))
}
