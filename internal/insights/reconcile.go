package insights

import (
	"github.com/gustavo/insight-cli/internal/model"
)

// DefaultGraceCycles is how many consecutive poll cycles an insight may be
// absent from the fresh batch before it is evicted from the cache.
const DefaultGraceCycles = 2

// Cached is an insight plus its miss counter. MissingCycles is zero whenever
// the identity was present in the most recent fetch.
type Cached struct {
	Insight       model.Insight
	MissingCycles uint
}

// Merge reconciles a fresh batch into the current cache. Entries matched by
// identity take the fresh payload with a reset miss counter; unmatched entries
// age by one cycle and are dropped once their counter would exceed grace.
// Genuinely new identities are appended after the retained entries, in batch
// order, so the result is stable for consumers across cycles.
//
// Merge is a pure function of its inputs and never fails; callers own the
// filtering of malformed records.
func Merge(current []Cached, fresh []model.Insight, grace uint) []Cached {
	lookup := make(map[string]model.Insight, len(fresh))
	for _, in := range fresh {
		lookup[in.Identity()] = in
	}

	out := make([]Cached, 0, len(current)+len(fresh))
	for _, entry := range current {
		key := entry.Insight.Identity()
		if in, ok := lookup[key]; ok {
			out = append(out, Cached{Insight: in})
			delete(lookup, key)
			continue
		}
		missed := entry.MissingCycles + 1
		if missed > grace {
			// Eviction, not an error: the upstream stopped reporting it.
			continue
		}
		out = append(out, Cached{Insight: entry.Insight, MissingCycles: missed})
	}

	for _, in := range fresh {
		if _, ok := lookup[in.Identity()]; !ok {
			continue
		}
		delete(lookup, in.Identity())
		out = append(out, Cached{Insight: in})
	}
	return out
}

// Remove filters out entries whose identity is listed in ids. Used for
// optimistic local deletion ahead of the remote delete confirmation.
func Remove(current []Cached, ids []string) []Cached {
	if len(ids) == 0 {
		return current
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]Cached, 0, len(current))
	for _, entry := range current {
		if _, ok := drop[entry.Insight.Identity()]; ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}
