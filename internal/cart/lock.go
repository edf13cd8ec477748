package cart

import (
	"slices"
	"sync"
)

// Locker serializes read-compute-write sequences per cart Identity.
type Locker interface {
	// Lock acquires the locks for every id and returns the release func.
	// Implementations must acquire multiple ids in a fixed order.
	Lock(ids ...Identity) (unlock func())
}

// KeyedLocker is an in-process Locker holding one mutex per Identity.
// Entries are reference counted and dropped when no longer held.
//
// Thread-safety: KeyedLocker is safe for concurrent use.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[Identity]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker returns an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[Identity]*keyedEntry)}
}

// Lock implements Locker. Identities are deduplicated and locked in
// Identity.Less order.
func (l *KeyedLocker) Lock(ids ...Identity) func() {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b Identity) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	sorted = slices.Compact(sorted)

	entries := make([]*keyedEntry, len(sorted))
	for i, id := range sorted {
		entries[i] = l.acquire(id)
		entries[i].mu.Lock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(sorted) - 1; i >= 0; i-- {
				entries[i].mu.Unlock()
				l.release(sorted[i])
			}
		})
	}
}

func (l *KeyedLocker) acquire(id Identity) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) release(id Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[id]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// held returns the number of tracked identities. Used by tests.
func (l *KeyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
