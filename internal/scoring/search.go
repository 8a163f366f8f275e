package scoring

// RandSource yields uniformly random permutations. *math/rand/v2.Rand
// satisfies it.
type RandSource interface {
	Perm(n int) []int
}

// SelectGroup runs a bounded random search over pool: each trial draws a
// random permutation and scores its first size elements. It returns the best
// group seen, or ok=false when pool is too small or no candidate beat the
// baseline.
func SelectGroup(pool []string, size, trials int, rng RandSource, score func([]string) Result) (group []string, best Result, ok bool) {
	best = Baseline()
	if size <= 0 || len(pool) < size {
		return nil, best, false
	}

	for i := 0; i < trials; i++ {
		perm := rng.Perm(len(pool))
		candidate := make([]string, size)
		for k := 0; k < size; k++ {
			candidate[k] = pool[perm[k]]
		}

		result := score(candidate)
		if result.Beats(best) {
			best = result
			group = candidate
		}
	}

	return group, best, group != nil
}

// Without returns pool minus the given ids, preserving order.
func Without(pool []string, ids []string) []string {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	remaining := make([]string, 0, len(pool))
	for _, id := range pool {
		if _, ok := drop[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
