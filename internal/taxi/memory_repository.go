package taxi

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository is an in-memory implementation of Repository for tests.
type MemoryRepository struct {
	mu        sync.Mutex
	nextID    int64
	Commits   []*BookingCommit
	Cancelled []int64
}

// NewMemoryRepository creates a new in-memory booking repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

// CommitBooking records the commit and returns a fresh request id.
func (r *MemoryRepository) CommitBooking(_ context.Context, commit *BookingCommit) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.Commits = append(r.Commits, commit)
	return id, nil
}

// CancelRequest records the cancellation.
func (r *MemoryRepository) CancelRequest(_ context.Context, requestID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requestID <= 0 || requestID >= r.nextID {
		return fmt.Errorf("request %d: %w", requestID, ErrRequestNotFound)
	}
	r.Cancelled = append(r.Cancelled, requestID)
	return nil
}
