package filter

import (
	"strings"

	"github.com/dgraph-io/ristretto/v2"
)

// globMemo caches glob results per (pattern, action type) pair. Action types
// form a small, hot set in practice, so most guard checks are a single cache
// lookup. When the cache cannot be created matching still works, uncached.
type globMemo struct {
	rc *ristretto.Cache[string, bool]
}

var globs = newGlobMemo(1 << 14)

func newGlobMemo(maxEntries int64) *globMemo {
	rc, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return &globMemo{}
	}
	return &globMemo{rc: rc}
}

func (m *globMemo) match(pattern, actionType string) bool {
	if m.rc == nil {
		return matchGlob(pattern, actionType)
	}

	key := pattern + "\x00" + actionType
	if v, ok := m.rc.Get(key); ok {
		return v
	}
	v := matchGlob(pattern, actionType)
	m.rc.Set(key, v, 1)
	return v
}

func matchGlob(pattern, actionType string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == actionType
	}
	return matchSegments(strings.Split(pattern, "."), strings.Split(actionType, "."))
}
