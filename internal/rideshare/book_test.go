package rideshare_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/rideshare"
	"github.com/motis-project/prima-dispatch/internal/routing"
)

const constantDriveTime = 10 * dispatch.Minute

var (
	driverOrigin      = dispatch.Coordinates{Lat: 51.0, Lng: 13.7}
	driverDestination = dispatch.Coordinates{Lat: 51.2, Lng: 13.9}
	rideStart         = dispatch.Coordinates{Lat: 51.03, Lng: 13.72}
	transitStop       = dispatch.Coordinates{Lat: 51.06, Lng: 13.76}
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

// testOffer is one driver's published tour from their origin to their
// destination, with plenty of slack between the two stops.
func testOffer(noon int64) rideshare.Offer {
	return rideshare.Offer{
		ID:         5,
		VehicleID:  70,
		Owner:      500,
		Capacities: dispatch.Capacities{Passengers: 3},
		Departure:  noon - dispatch.Hour,
		Arrival:    noon + 2*dispatch.Hour,
		Events: []rideshare.Event{
			{
				ID: 10, RequestID: 1, TourID: 5, IsPickup: true,
				Coordinates:      driverOrigin,
				Capacities:       dispatch.Capacities{Passengers: 1},
				Time:             interval.New(noon-dispatch.Hour, noon-50*dispatch.Minute),
				CommunicatedTime: noon - dispatch.Hour,
				NextLegDuration:  30 * dispatch.Minute,
				Departure:        noon - dispatch.Hour,
				Arrival:          noon + 2*dispatch.Hour,
			},
			{
				ID: 11, RequestID: 1, TourID: 5, IsPickup: false,
				Coordinates:      driverDestination,
				Capacities:       dispatch.Capacities{Passengers: 1},
				Time:             interval.New(noon+110*dispatch.Minute, noon+2*dispatch.Hour),
				CommunicatedTime: noon + 2*dispatch.Hour,
				PrevLegDuration:  30 * dispatch.Minute,
				Departure:        noon - dispatch.Hour,
				Arrival:          noon + 2*dispatch.Hour,
			},
		},
	}
}

// withPendingRequest adds the two not-yet-accepted stops of request 2 to the
// offer, the way a booking leaves them behind.
func withPendingRequest(offer rideshare.Offer, noon int64) rideshare.Offer {
	busTime := noon
	pending := []rideshare.Event{
		{
			ID: 20, RequestID: 2, TourID: 5, IsPickup: true, Pending: true,
			Coordinates:      rideStart,
			Capacities:       dispatch.Capacities{Passengers: 1},
			Time:             interval.New(noon-21*dispatch.Minute, noon-21*dispatch.Minute),
			CommunicatedTime: noon - 21*dispatch.Minute,
			Departure:        offer.Departure,
			Arrival:          offer.Arrival,
		},
		{
			ID: 21, RequestID: 2, TourID: 5, IsPickup: false, Pending: true,
			BusStopTime:      &busTime,
			Coordinates:      transitStop,
			Capacities:       dispatch.Capacities{Passengers: 1},
			Time:             interval.New(noon-10*dispatch.Minute, noon),
			CommunicatedTime: noon,
			Departure:        offer.Departure,
			Arrival:          offer.Arrival,
		},
	}
	offer.Events = []rideshare.Event{offer.Events[0], pending[0], pending[1], offer.Events[1]}
	return offer
}

type fixture struct {
	service  *rideshare.Service
	repo     *rideshare.MemoryRepository
	notifier *capturePublisher
	signer   *booking.Signer
	noon     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	noon := time.Date(2026, time.March, 10, 12, 0, 0, 0, loc).UnixMilli()

	repo := rideshare.NewMemoryRepository()
	notifier := &capturePublisher{}
	clock := func() time.Time { return time.UnixMilli(noon - 4*dispatch.Hour).In(loc) }
	signer := booking.NewSigner(booking.SignerConfig{
		SigningKey: "test-key",
		Issuer:     "dispatch",
		Now:        clock,
	})
	service := rideshare.NewService(rideshare.ServiceConfig{
		Repository: repo,
		Routing: routing.NewService(routing.ServiceConfig{
			Provider:    &constantProvider{duration: constantDriveTime},
			Logger:      zerolog.Nop(),
			MaxDuration: rideshare.MaxTourTime,
		}),
		Signer:   signer,
		Notifier: notifier,
		Logger:   zerolog.Nop(),
		Now:      clock,
	})
	return &fixture{service: service, repo: repo, notifier: notifier, signer: signer, noon: noon}
}

// signedConnection builds a bookable leg from the ride start to the transit
// stop, arriving at the requested time.
func signedConnection(t *testing.T, f *fixture) *booking.ExpectedConnection {
	t.Helper()
	c := booking.ExpectedConnection{
		Start:         rideStart,
		Target:        transitStop,
		StartTime:     f.noon - 21*dispatch.Minute,
		TargetTime:    f.noon,
		RequestedTime: f.noon,
		StartFixed:    false,
	}
	signature, err := f.signer.Sign(c)
	require.NoError(t, err)
	c.Signature = signature
	return &c
}

func TestBookFilesPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.repo.Offers = []rideshare.Offer{testOffer(f.noon)}
	c := signedConnection(t, f)

	result, err := f.service.Book(context.Background(), rideshare.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
		CustomerID:  77,
	})
	require.NoError(t, err)
	require.NotNil(t, result.RequestID1)
	assert.Equal(t, int64(1), *result.RequestID1)
	assert.Nil(t, result.RequestID2)

	require.Len(t, f.repo.Pending, 1)
	commit := f.repo.Pending[0]
	assert.Equal(t, int64(77), commit.CustomerID)
	assert.Equal(t, int64(5), commit.TourID)
	assert.Equal(t, f.noon, commit.BusStopTime)
	assert.True(t, commit.Pickup.IsPickup)
	assert.False(t, commit.Dropoff.IsPickup)
	assert.Equal(t, f.noon, commit.Dropoff.CommunicatedTime)
	assert.Less(t, commit.Pickup.CommunicatedTime, commit.Dropoff.CommunicatedTime)

	require.Len(t, f.notifier.changes, 1)
	change := f.notifier.changes[0]
	assert.Equal(t, notify.ChangeRequested, change.Change)
	assert.Equal(t, int64(70), change.VehicleID)
	assert.Equal(t, int64(5), change.TourID)
}

func TestBookRequiresConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Book(context.Background(), rideshare.BookingParameters{
		Capacities: dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, rideshare.ErrMissingConnection)
}

func TestBookRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	c := signedConnection(t, f)
	c.TargetTime += dispatch.Minute

	_, err := f.service.Book(context.Background(), rideshare.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, booking.ErrInvalidSignature)
}

func TestBookNoMatchingTour(t *testing.T) {
	f := newFixture(t)
	c := signedConnection(t, f)

	_, err := f.service.Book(context.Background(), rideshare.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, rideshare.ErrNoMatchingTour)
	assert.Empty(t, f.repo.Pending)
}

func TestAcceptConfirmsPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.repo.Offers = []rideshare.Offer{withPendingRequest(testOffer(f.noon), f.noon)}

	require.NoError(t, f.service.Accept(context.Background(), 2, 500))

	require.Len(t, f.repo.Accepted, 1)
	commit := f.repo.Accepted[0]
	assert.Equal(t, int64(2), commit.RequestID)
	assert.Equal(t, int64(20), commit.PickupEventID)
	assert.Equal(t, int64(21), commit.DropoffEventID)
	assert.Equal(t, f.noon-21*dispatch.Minute, commit.Pickup.CommunicatedTime,
		"promised pickup time must be kept")
	assert.Equal(t, f.noon, commit.Dropoff.CommunicatedTime,
		"promised dropoff time must be kept")

	require.Len(t, f.notifier.changes, 1)
	assert.Equal(t, notify.ChangeAccepted, f.notifier.changes[0].Change)
	assert.Equal(t, int64(70), f.notifier.changes[0].VehicleID)
}

func TestAcceptRejectsForeignDriver(t *testing.T) {
	f := newFixture(t)
	f.repo.Offers = []rideshare.Offer{withPendingRequest(testOffer(f.noon), f.noon)}

	err := f.service.Accept(context.Background(), 2, 999)
	assert.ErrorIs(t, err, rideshare.ErrNotTourOwner)
	assert.Empty(t, f.repo.Accepted)
}

func TestAcceptUnknownRequest(t *testing.T) {
	f := newFixture(t)

	err := f.service.Accept(context.Background(), 42, 500)
	assert.ErrorIs(t, err, rideshare.ErrRequestNotFound)
}

func TestAcceptTourNoLongerValid(t *testing.T) {
	f := newFixture(t)
	// The vehicle is already full between the accepted stops, so the pending
	// request cannot be placed anymore.
	offer := withPendingRequest(testOffer(f.noon), f.noon)
	offer.Capacities = dispatch.Capacities{Passengers: 1}
	f.repo.Offers = []rideshare.Offer{offer}

	err := f.service.Accept(context.Background(), 2, 500)
	assert.ErrorIs(t, err, rideshare.ErrTourNoLongerValid)
	assert.Empty(t, f.repo.Accepted)
}

func TestCancelRequest(t *testing.T) {
	f := newFixture(t)
	f.repo.Offers = []rideshare.Offer{testOffer(f.noon)}
	c := signedConnection(t, f)

	result, err := f.service.Book(context.Background(), rideshare.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(context.Background(), *result.RequestID1))
	assert.Equal(t, []int64{*result.RequestID1}, f.repo.Cancelled)
	assert.Equal(t, notify.ChangeCancelled, f.notifier.changes[len(f.notifier.changes)-1].Change)
}

func TestCancelUnknownRequest(t *testing.T) {
	f := newFixture(t)

	err := f.service.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, rideshare.ErrRequestNotFound)
}
