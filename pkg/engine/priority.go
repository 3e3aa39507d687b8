package engine

import "sort"

// Flatten orders buckets by ascending priority and concatenates them. The
// order inside a bucket is kept.
func Flatten[T any](buckets map[int][]T) []T {
	keys := make([]int, 0, len(buckets))
	total := 0
	for k, items := range buckets {
		keys = append(keys, k)
		total += len(items)
	}
	sort.Ints(keys)

	out := make([]T, 0, total)
	for _, k := range keys {
		out = append(out, buckets[k]...)
	}
	return out
}
