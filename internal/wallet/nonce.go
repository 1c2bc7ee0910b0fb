package wallet

import (
	"sync"
	"sync/atomic"
)

// nonceTracker hands out sequential nonces for one sender on one chain.
type nonceTracker struct {
	mu     sync.Mutex
	next   uint64
	synced bool
}

// Nonce is a reserved nonce that must be committed or rolled back.
// Use defer n.Rollback() immediately after reserving.
type Nonce struct {
	value     uint64
	tracker   *nonceTracker
	committed atomic.Bool
}

// Value returns the nonce value.
func (n *Nonce) Value() uint64 {
	return n.value
}

// Commit marks the nonce as used. Idempotent.
func (n *Nonce) Commit() {
	n.committed.Store(true)
}

// Rollback returns the nonce if it was not committed. Idempotent.
func (n *Nonce) Rollback() {
	if n.committed.Swap(true) {
		return
	}
	n.tracker.rollback(n.value)
}

func (t *nonceTracker) reserve() *Nonce {
	t.mu.Lock()
	v := t.next
	t.next++
	t.mu.Unlock()
	return &Nonce{value: v, tracker: t}
}

// rollback decrements only if nonce was the last one issued.
func (t *nonceTracker) rollback(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next == nonce+1 {
		t.next = nonce
	}
}

// observe raises the next nonce to the chain's pending count, never lowering it.
func (t *nonceTracker) observe(pending uint64) {
	t.mu.Lock()
	if pending > t.next {
		t.next = pending
	}
	t.synced = true
	t.mu.Unlock()
}

func (t *nonceTracker) isSynced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.synced
}

// invalidate forces the next reservation to resync from chain.
func (t *nonceTracker) invalidate() {
	t.mu.Lock()
	t.synced = false
	t.mu.Unlock()
}
