// Package shard maps keys onto a fixed number of stripes.
package shard

import (
	"hash/fnv"
	"slices"
)

// Index returns the stripe for key. With numShards <= 1 every key maps to 0.
func Index(key string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(numShards))
}

// Indexes returns the distinct stripes for keys in ascending order, so that
// callers locking several stripes always acquire them in the same order.
func Indexes(numShards int, keys ...string) []int {
	out := make([]int, 0, len(keys))
	for _, k := range keys {
		out = append(out, Index(k, numShards))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
