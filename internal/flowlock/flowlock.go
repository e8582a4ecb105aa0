// Package flowlock serializes the read-modify-write cycle inside
// updateFlowProgress (§4.4, §5 "Shared-resource policy") so concurrent
// child-job reports on the same flowId cannot interleave and lose an
// update. SQLite's single-writer connection already serializes the
// physical write; this striped mutex serializes the logical
// read+recompute+write unit per flowId across goroutines.
package flowlock

import "sync"

const stripes = 64

// Striped is a fixed set of mutexes, one flowId hashing to one stripe.
// Two different flowIds usually land on different stripes and do not
// contend; this bounds memory without a per-flowId map that would grow
// unbounded over the service's lifetime.
type Striped struct {
	locks [stripes]sync.Mutex
}

// New returns a ready-to-use striped lock set.
func New() *Striped {
	return &Striped{}
}

// Lock acquires the stripe for flowId.
func (s *Striped) Lock(flowID string) {
	s.locks[stripe(flowID)].Lock()
}

// Unlock releases the stripe for flowId.
func (s *Striped) Unlock(flowID string) {
	s.locks[stripe(flowID)].Unlock()
}

// With runs fn while holding the stripe for flowID.
func (s *Striped) With(flowID string, fn func() error) error {
	s.Lock(flowID)
	defer s.Unlock(flowID)
	return fn()
}

func stripe(flowID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(flowID); i++ {
		h ^= uint32(flowID[i])
		h *= 16777619
	}
	return h % stripes
}
