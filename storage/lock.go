package storage

import (
	"sync"

	"github.com/poiesic/mailsift/core"
)

// KeyedMutex serializes work per record id while letting different ids
// proceed in parallel. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[core.ID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for id and returns the function that releases it.
func (k *KeyedMutex) Lock(id core.ID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[core.ID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of ids currently locked or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
