package engine

// Aggregation merge rules. Map-shaped slots (stages 3-5) are keyed by the
// owning goal; list-shaped slots (stages 6-10) accumulate children tagged
// with their parent id. In both shapes a selective re-run replaces only the
// branches that actually succeeded this invocation; everything else is
// carried over from the prior committed value untouched.

// mergeMapSlot overlays the freshly successful entries onto the prior map.
// Keys absent from fresh keep their prior value byte for byte.
func mergeMapSlot[V any](prior, fresh map[string]V) map[string]V {
	out := make(map[string]V, len(prior)+len(fresh))
	for k, v := range prior {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out
}

// mergeListSlot removes the prior children of every parent re-run
// successfully this invocation, then appends the fresh children. Prior order
// is preserved for untouched parents; fresh children keep submission order.
func mergeListSlot[T any](prior []T, rerun map[string]bool, fresh []T, parentOf func(T) string) []T {
	out := make([]T, 0, len(prior)+len(fresh))
	for _, item := range prior {
		if rerun[parentOf(item)] {
			continue
		}
		out = append(out, item)
	}
	return append(out, fresh...)
}
