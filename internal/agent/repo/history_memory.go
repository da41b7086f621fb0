package repo

import (
	"context"
	"sync"

	"github.com/graphdesk/server/internal/agent/model"
)

// MemoryHistoryRepository is an in-process history store with the same
// trimming behaviour as the Redis implementation. Used in tests and for
// redis-less local runs.
type MemoryHistoryRepository struct {
	mu       sync.Mutex
	maxTurns int
	turns    map[string][]model.Turn
}

func NewMemoryHistoryRepository(maxTurns int) *MemoryHistoryRepository {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &MemoryHistoryRepository{
		maxTurns: maxTurns,
		turns:    make(map[string][]model.Turn),
	}
}

func (r *MemoryHistoryRepository) AddTurn(_ context.Context, sessionID string, turn model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	turns := append(r.turns[sessionID], turn)
	if len(turns) > r.maxTurns {
		turns = turns[len(turns)-r.maxTurns:]
	}
	r.turns[sessionID] = turns
	return nil
}

func (r *MemoryHistoryRepository) Recent(_ context.Context, sessionID string) ([]model.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Turn, len(r.turns[sessionID]))
	copy(out, r.turns[sessionID])
	return out, nil
}

func (r *MemoryHistoryRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.turns, sessionID)
	return nil
}

var _ model.HistoryRepository = (*MemoryHistoryRepository)(nil)
