package taxi

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/routing"
)

// ServiceConfig holds configuration for the taxi dispatch service.
type ServiceConfig struct {
	// Availability provides scheduling snapshots.
	Availability *availability.Service

	// Routing computes driving durations.
	Routing *routing.Service

	// Repository persists committed bookings.
	Repository Repository

	// Signer validates connection signatures on booking requests.
	Signer *booking.Signer

	// Notifier publishes booking notifications. Optional.
	Notifier notify.Publisher

	// Logger for service operations.
	Logger zerolog.Logger

	// Location is the fleet's timezone (default: Europe/Berlin).
	Location *time.Location

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service evaluates and commits taxi request insertions.
type Service struct {
	availability *availability.Service
	routing      *routing.Service
	repo         Repository
	signer       *booking.Signer
	notifier     notify.Publisher
	logger       zerolog.Logger
	loc          *time.Location
	now          func() time.Time
}

// NewService creates a taxi dispatch service.
func NewService(cfg ServiceConfig) *Service {
	loc := cfg.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation("Europe/Berlin")
		if err != nil {
			loc = time.UTC
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		availability: cfg.Availability,
		routing:      cfg.Routing,
		repo:         cfg.Repository,
		signer:       cfg.Signer,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger.With().Str("component", "taxi").Logger(),
		loc:          loc,
		now:          now,
	}
}
