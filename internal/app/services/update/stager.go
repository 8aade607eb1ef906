package update

import (
	"math/big"
	"sync"
)

// StagedUpdate is one update decision handed to the submission pipeline.
type StagedUpdate struct {
	ChainID    string
	Provider   string
	FeedName   string
	DataFeedID string
	Value      *big.Int
	Timestamp  int64
}

// Stager receives update decisions. Submission itself (signing, gas,
// broadcasting) happens downstream.
type Stager interface {
	Stage(update StagedUpdate)
}

// MemoryStager records staged updates in memory.
type MemoryStager struct {
	mu     sync.Mutex
	staged []StagedUpdate
}

// NewMemoryStager creates an empty stager.
func NewMemoryStager() *MemoryStager {
	return &MemoryStager{}
}

// Stage records the decision.
func (m *MemoryStager) Stage(update StagedUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, update)
}

// Staged returns a copy of all recorded decisions.
func (m *MemoryStager) Staged() []StagedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]StagedUpdate(nil), m.staged...)
}
