package state

import (
	"sync"

	"github.com/nebulafi/feedkeeper/internal/app/domain/signeddata"
)

// PointStore is the process-wide cache of the latest signed data point per
// (airnode, template) key. Safe for concurrent use; each upsert is atomic
// with respect to its key.
type PointStore struct {
	mu     sync.RWMutex
	points map[string]signeddata.Point
}

// NewPointStore creates an empty store.
func NewPointStore() *PointStore {
	return &PointStore{points: make(map[string]signeddata.Point)}
}

// Upsert stores the point unless a point with an equal or greater timestamp
// is already held for its key. Returns whether the point was accepted.
func (s *PointStore) Upsert(p signeddata.Point) bool {
	key := p.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.points[key]; ok && existing.Timestamp >= p.Timestamp {
		return false
	}
	s.points[key] = p
	return true
}

// Get returns the latest point for a key, if any.
func (s *PointStore) Get(key string) (signeddata.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.points[key]
	return p, ok
}

// Purge drops every point whose key is not in the active set and returns
// the number of points removed.
func (s *PointStore) Purge(active map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.points {
		if _, ok := active[key]; !ok {
			delete(s.points, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of held points.
func (s *PointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.points)
}
