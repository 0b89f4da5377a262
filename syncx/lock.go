package syncx

import (
	"sync"
)

// LockMap lazily allocates one mutex per key.
type LockMap struct {
	locks sync.Map
}

func (lm *LockMap) LoadOrCreate(key any) *sync.Mutex {
	v, ok := lm.locks.Load(key)
	if !ok {
		v, _ = lm.locks.LoadOrStore(key, &sync.Mutex{})
	}
	m, _ := v.(*sync.Mutex)
	return m
}
