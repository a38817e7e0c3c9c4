package repository

import (
	"errors"
	"sync"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// ErrRunNotFound is returned when no run exists for the given id
var ErrRunNotFound = errors.New("strategy run not found")

// RunRepository defines strategy run archive access
type RunRepository interface {
	// Save stores or replaces a run
	Save(run *entity.StrategyRun) error

	// GetByID retrieves a run by id
	GetByID(id string) (*entity.StrategyRun, error)

	// List retrieves all runs in insertion order
	List() []*entity.StrategyRun
}

// InMemoryRunRepository keeps runs for the lifetime of the process.
// Cross-run queries are read-only; each run is still written only by
// its owning strategy task.
type InMemoryRunRepository struct {
	mu    sync.RWMutex
	runs  map[string]*entity.StrategyRun
	order []string
}

// NewInMemoryRunRepository creates an empty archive
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[string]*entity.StrategyRun)}
}

// Save stores or replaces a run
func (r *InMemoryRunRepository) Save(run *entity.StrategyRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		r.order = append(r.order, run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// GetByID retrieves a run by id
func (r *InMemoryRunRepository) GetByID(id string) (*entity.StrategyRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List retrieves all runs in insertion order
func (r *InMemoryRunRepository) List() []*entity.StrategyRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.StrategyRun, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.runs[id])
	}
	return out
}
