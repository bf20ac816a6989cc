package datasetstore

import "sync"

// nameLocks serializes mutating operations per dataset name. Two concurrent
// stores for the same name would otherwise race on version generation and
// retention counting; stores for different names proceed independently.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

func (n *nameLocks) lock(name string) {
	n.mu.Lock()
	l, ok := n.locks[name]
	if !ok {
		l = &nameLock{}
		n.locks[name] = l
	}
	l.refs++
	n.mu.Unlock()

	l.mu.Lock()
}

func (n *nameLocks) unlock(name string) {
	n.mu.Lock()
	l := n.locks[name]
	l.refs--
	if l.refs == 0 {
		delete(n.locks, name)
	}
	n.mu.Unlock()

	l.mu.Unlock()
}
