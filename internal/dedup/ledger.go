// Package dedup tracks which source identifiers have already been accepted
// within a region during one scheduling run. The scope is deliberately wider
// than a zone: zones inside a region overlap geographically, and the same
// hotel surfacing in two zones must only be credited against one quota.
package dedup

import "sync"

// Ledger records first-sight acceptance per region scope. Its lifetime is one
// run; persistence-layer uniqueness is a separate line of defense. Create one
// per run rather than sharing a process-wide instance.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]map[string]struct{})}
}

// Accept returns true and records id on first sight within the region scope,
// false on every subsequent sight.
func (l *Ledger) Accept(regionScope, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, ok := l.seen[regionScope]
	if !ok {
		ids = make(map[string]struct{})
		l.seen[regionScope] = ids
	}
	if _, dup := ids[id]; dup {
		return false
	}
	ids[id] = struct{}{}
	return true
}

// Seen reports whether id was already accepted in the region scope.
func (l *Ledger) Seen(regionScope, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[regionScope][id]
	return ok
}

// Count returns how many identifiers have been accepted in the region scope.
func (l *Ledger) Count(regionScope string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen[regionScope])
}
