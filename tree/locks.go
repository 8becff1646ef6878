package tree

import (
	"sync"

	"github.com/jacentio/mpath/internal/shard"
)

// rootLocks serializes structural mutations per tree root. A zero-stripe
// value is a no-op lock.
type rootLocks struct {
	stripes []sync.Mutex
}

func newRootLocks(n int) *rootLocks {
	if n <= 0 {
		return &rootLocks{}
	}
	return &rootLocks{stripes: make([]sync.Mutex, n)}
}

// lock acquires the stripes of every root in ascending stripe order and
// returns the matching unlock.
func (r *rootLocks) lock(roots ...string) func() {
	if len(r.stripes) == 0 {
		return func() {}
	}
	idx := shard.Indexes(len(r.stripes), roots...)
	for _, i := range idx {
		r.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			r.stripes[idx[j]].Unlock()
		}
	}
}

// lockAll acquires every stripe.
func (r *rootLocks) lockAll() func() {
	for i := range r.stripes {
		r.stripes[i].Lock()
	}
	return func() {
		for i := len(r.stripes) - 1; i >= 0; i-- {
			r.stripes[i].Unlock()
		}
	}
}
