package taxi_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// constantDriveTime keeps the evaluation arithmetic predictable: every leg
// takes the same time regardless of coordinates.
const constantDriveTime = 10 * dispatch.Minute

var (
	companyDepot = dispatch.Coordinates{Lat: 51.0, Lng: 13.7}
	rideStart    = dispatch.Coordinates{Lat: 51.03, Lng: 13.72}
	transitStop  = dispatch.Coordinates{Lat: 51.06, Lng: 13.76}
)

type constantProvider struct {
	duration int64
}

func (p *constantProvider) Name() string { return "constant" }

func (p *constantProvider) OneToMany(_ context.Context, _ dispatch.Coordinates, many []dispatch.Coordinates, _ bool) ([]*int64, error) {
	out := make([]*int64, len(many))
	for i := range many {
		d := p.duration
		out[i] = &d
	}
	return out, nil
}

type capturePublisher struct {
	changes []notify.TourChange
}

func (p *capturePublisher) PublishTourChange(_ context.Context, change notify.TourChange) error {
	p.changes = append(p.changes, change)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	service   *taxi.Service
	bookings  *taxi.MemoryRepository
	notifier  *capturePublisher
	availRepo *availability.InMemoryRepository
	signer    *booking.Signer

	// noon is a Tuesday noon in the fleet's timezone, inside the permitted
	// shift hours. The clock is fixed four hours earlier so the booking lead
	// time is satisfied.
	noon int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	noon := time.Date(2026, time.March, 10, 12, 0, 0, 0, loc).UnixMilli()

	availRepo := availability.NewInMemoryRepository()
	availRepo.CompanyRows = []availability.CompanyRow{
		{ID: 1, ZoneID: 10, Coordinates: companyDepot},
	}
	availRepo.VehicleRows = []availability.VehicleRow{
		{ID: 7, CompanyID: 1, Capacities: dispatch.Capacities{Passengers: 3, Luggage: 2}},
	}
	availRepo.AvailabilityRows = []availability.AvailabilityRow{
		{VehicleID: 7, Start: noon - 5*dispatch.Hour, End: noon + 5*dispatch.Hour},
	}

	availSvc := availability.NewService(availability.ServiceConfig{
		Repository: availRepo,
		Logger:     zerolog.Nop(),
	})
	routingSvc := routing.NewService(routing.ServiceConfig{
		Provider: &constantProvider{duration: constantDriveTime},
		Logger:   zerolog.Nop(),
	})
	clock := func() time.Time { return time.UnixMilli(noon - 4*dispatch.Hour).In(loc) }
	signer := booking.NewSigner(booking.SignerConfig{
		SigningKey: "test-key",
		Issuer:     "dispatch",
		Now:        clock,
	})
	bookings := taxi.NewMemoryRepository()
	notifier := &capturePublisher{}

	service := taxi.NewService(taxi.ServiceConfig{
		Availability: availSvc,
		Routing:      routingSvc,
		Repository:   bookings,
		Signer:       signer,
		Notifier:     notifier,
		Logger:       zerolog.Nop(),
		Location:     loc,
		Now:          clock,
	})
	return &fixture{
		service:   service,
		bookings:  bookings,
		notifier:  notifier,
		availRepo: availRepo,
		signer:    signer,
		noon:      noon,
	}
}
