package syncx

import (
	"sync"
)

// Map is a typed wrapper over sync.Map.
type Map[TK any, TV any] struct {
	data sync.Map
}

func (m *Map[TK, TV]) Store(key TK, value TV) {
	m.data.Store(key, value)
}

func (m *Map[TK, TV]) Load(key TK) (TV, bool) {
	v, ok := m.data.Load(key)
	var v2 TV
	if ok {
		v2, ok = v.(TV)
	}
	return v2, ok
}

// LoadOrStore stores value under key unless one is already present, and
// returns the value that ended up stored.
func (m *Map[TK, TV]) LoadOrStore(key TK, value TV) (TV, bool) {
	v, ok := m.data.LoadOrStore(key, value)
	return v.(TV), ok
}

func NewMap[TK any, TV any]() *Map[TK, TV] {
	return &Map[TK, TV]{}
}
