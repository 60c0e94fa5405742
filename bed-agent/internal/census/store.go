package census

import (
	"errors"
	"sync"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var ErrNotFound = errors.New("ward not found")

// Listener receives a copy of the census after every successful mutation.
type Listener func(snapshot []models.ServiceCensus)

// Store owns the current census. All mutations go through it and return a fresh snapshot.
type Store struct {
	mu        sync.RWMutex
	services  []models.ServiceCensus
	listeners []Listener
}

func NewStore(initial []models.ServiceCensus) *Store {
	return &Store{services: clone(initial)}
}

// OnChange registers a listener. Listeners run under the store lock, in mutation order,
// so they must not block or call back into the store.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) Snapshot() []models.ServiceCensus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.services)
}

// View calls fn with a copy of the census and holds off mutations until fn returns.
// fn must not call back into the store.
func (s *Store) View(fn func(snapshot []models.ServiceCensus)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(clone(s.services))
}

// Replace swaps the whole census after validating it.
func (s *Store) Replace(services []models.ServiceCensus) ([]models.ServiceCensus, error) {
	if err := ValidateAll(services); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = clone(services)
	snap := clone(s.services)
	s.notifyLocked(snap)
	return snap, nil
}

// UpdateWard replaces the entry with the same id.
func (s *Store) UpdateWard(ward models.ServiceCensus) ([]models.ServiceCensus, error) {
	if err := Validate(ward); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.services {
		if s.services[i].ID == ward.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	s.services[idx] = ward
	snap := clone(s.services)
	s.notifyLocked(snap)
	return snap, nil
}

func (s *Store) notifyLocked(snap []models.ServiceCensus) {
	for _, l := range s.listeners {
		l(clone(snap))
	}
}

func clone(in []models.ServiceCensus) []models.ServiceCensus {
	if in == nil {
		return []models.ServiceCensus{}
	}
	out := make([]models.ServiceCensus, len(in))
	copy(out, in)
	return out
}
