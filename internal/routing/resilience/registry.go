package resilience

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health state labels reported by the registry.
const (
	StateOK       = "ok"
	StateDegraded = "degraded"
	StateDown     = "down"
)

// Health is one routing provider's view for the ops status endpoint.
type Health struct {
	Name        string           `json:"name"`
	State       string           `json:"state"`
	Counts      gobreaker.Counts `json:"counts"`
	LastSuccess *time.Time       `json:"lastSuccess,omitempty"`
	LastFailure *time.Time       `json:"lastFailure,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
}

// Registry tracks the routing providers' clients and their recent outcomes.
// Clients register themselves in NewClient and report every request.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerState
	now       func() time.Time
}

type providerState struct {
	client      *Client
	lastSuccess *time.Time
	lastFailure *time.Time
	lastError   string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

func (r *Registry) register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerState{client: client}
}

func (r *Registry) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastSuccess = &now
	}
}

func (r *Registry) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastFailure = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// Health returns one provider's health, or false when it is not registered.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return Health{}, false
	}
	return health(name, p), true
}

// HealthAll returns every registered provider's health, sorted by name.
func (r *Registry) HealthAll() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Health, 0, len(r.providers))
	for name, p := range r.providers {
		all = append(all, health(name, p))
	}
	sort.Slice(all, func(a, b int) bool { return all[a].Name < all[b].Name })
	return all
}

// Probe returns a readiness check for one provider. It fails while the
// provider's circuit is open, and for providers that never registered.
func (r *Registry) Probe(name string) func() error {
	return func() error {
		h, ok := r.Health(name)
		if !ok {
			return fmt.Errorf("provider %s not registered", name)
		}
		if h.State == StateDown {
			return fmt.Errorf("provider %s is down: %s", name, h.LastError)
		}
		return nil
	}
}

func health(name string, p *providerState) Health {
	return Health{
		Name:        name,
		State:       stateLabel(p.client.State()),
		Counts:      p.client.Counts(),
		LastSuccess: p.lastSuccess,
		LastFailure: p.lastFailure,
		LastError:   p.lastError,
	}
}

func stateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateDown
	case gobreaker.StateHalfOpen:
		return StateDegraded
	default:
		return StateOK
	}
}
