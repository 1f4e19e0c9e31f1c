package store

import (
	"context"
	"hash/fnv"
	"sync"

	"curaledger/internal/ledger/models"
	"curaledger/pkg/domain"
)

// numShards bounds the number of per-case writer locks. Cases hash onto a shard,
// so two cases only contend when they collide.
const numShards = 128

// InMemory keeps aggregates in process. Writers for one case are serialized by
// a shard mutex; readers take a snapshot under the map lock and never block on
// writers of other cases.
type InMemory struct {
	shards [numShards]sync.Mutex

	mu        sync.RWMutex
	cases     map[domain.CaseID]*models.Aggregate
	donations map[domain.CaseID][]models.Donation
	counter   uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		cases:     make(map[domain.CaseID]*models.Aggregate),
		donations: make(map[domain.CaseID][]models.Donation),
	}
}

// NextCaseNumber advances the case counter.
func (s *InMemory) NextCaseNumber(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter, nil
}

// CreateIfPatientAvailable stores a new case unless its id is taken or the
// patient already has an open case.
func (s *InMemory) CreateIfPatientAvailable(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return ErrCaseIDTaken
	}
	for _, agg := range s.cases {
		if agg.Case.Patient == c.Patient && agg.Case.IsOpen() {
			return ErrPatientHasOpenCase
		}
	}
	s.cases[c.ID] = &models.Aggregate{Case: c.Clone()}
	return nil
}

// FindByID returns a copy of the case.
func (s *InMemory) FindByID(_ context.Context, id domain.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return agg.Case.Clone(), nil
}

// Load returns a read-only snapshot of the aggregate without taking the writer lock.
func (s *InMemory) Load(_ context.Context, id domain.CaseID) (*models.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return agg.Clone(), nil
}

// ListDonations returns the donation audit trail of a case in insertion order.
func (s *InMemory) ListDonations(_ context.Context, id domain.CaseID) ([]models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Donation{}, s.donations[id]...), nil
}

// Execute runs fn against a copy of the aggregate while holding the case's writer
// lock. The copy replaces stored state only if fn returns nil.
func (s *InMemory) Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := &s.shards[shardFor(id)]
	shard.Lock()
	defer shard.Unlock()

	s.mu.RLock()
	stored, ok := s.cases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !working.Closed && working.Case.IsOpen() && !stored.Case.IsOpen() {
		for otherID, agg := range s.cases {
			if otherID != id && agg.Case.Patient == working.Case.Patient && agg.Case.IsOpen() {
				return nil, ErrPatientHasOpenCase
			}
		}
	}
	if len(working.NewDonations) > 0 {
		s.donations[id] = append(s.donations[id], working.NewDonations...)
	}
	if working.Closed {
		delete(s.cases, id)
		return working, nil
	}
	committed := working.Clone()
	committed.NewDonations = nil
	s.cases[id] = committed
	return working, nil
}

func shardFor(id domain.CaseID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % numShards)
}
