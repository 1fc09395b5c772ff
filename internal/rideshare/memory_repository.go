package rideshare

import (
	"context"
	"fmt"
	"sync"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// MemoryRepository is an in-memory implementation of Repository for tests.
type MemoryRepository struct {
	mu        sync.Mutex
	nextID    int64
	Offers    []Offer
	Pending   []*RequestCommit
	Accepted  []*AcceptCommit
	Cancelled []int64
}

// NewMemoryRepository creates a new in-memory ride-share repository.
func NewMemoryRepository(offers ...Offer) *MemoryRepository {
	return &MemoryRepository{nextID: 1, Offers: offers}
}

// OpenTours returns the stored offers overlapping the window whose vehicle
// fits the required capacities.
func (r *MemoryRepository) OpenTours(
	_ context.Context,
	window interval.Interval,
	required dispatch.Capacities,
) ([]Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matching []Offer
	for _, o := range r.Offers {
		if o.Departure >= window.End || o.Arrival <= window.Start {
			continue
		}
		if o.Passengers < required.Passengers || o.Wheelchairs < required.Wheelchairs ||
			o.Bikes < required.Bikes || o.Luggage < required.Luggage {
			continue
		}
		matching = append(matching, o)
	}
	return matching, nil
}

// TourByRequest returns the stored offer containing the given request.
func (r *MemoryRepository) TourByRequest(_ context.Context, requestID int64) (*Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Offers {
		for _, e := range r.Offers[i].Events {
			if e.RequestID == requestID {
				return &r.Offers[i], nil
			}
		}
	}
	return nil, nil
}

// CreatePendingRequest records the commit and returns a fresh request id.
func (r *MemoryRepository) CreatePendingRequest(_ context.Context, commit *RequestCommit) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.Pending = append(r.Pending, commit)
	return id, nil
}

// AcceptRequest records the accept.
func (r *MemoryRepository) AcceptRequest(_ context.Context, accept *AcceptCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Accepted = append(r.Accepted, accept)
	return nil
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
