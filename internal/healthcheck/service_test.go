package healthcheck_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

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

// stubRepository serves a fixed schedule and records the windows it was
// queried with.
type stubRepository struct {
	tours   []healthcheck.Tour
	windows []*interval.Interval
}

func (r *stubRepository) ToursWithRequests(_ context.Context, includeCancelled bool, window *interval.Interval, vehicleID *int64) ([]healthcheck.Tour, error) {
	r.windows = append(r.windows, window)
	var out []healthcheck.Tour
	for _, tour := range r.tours {
		if vehicleID != nil && tour.VehicleID != *vehicleID {
			continue
		}
		if !includeCancelled && tour.Cancelled {
			continue
		}
		kept := tour
		if !includeCancelled {
			kept.Requests = nil
			for _, request := range tour.Requests {
				if !request.Cancelled {
					kept.Requests = append(kept.Requests, request)
				}
			}
		}
		out = append(out, kept)
	}
	return out, nil
}

func newService(repo healthcheck.Repository) *healthcheck.Service {
	return healthcheck.NewService(healthcheck.ServiceConfig{
		Repository: repo,
		Routing: routing.NewService(routing.ServiceConfig{
			Provider: &constantProvider{duration: constantDriveTime},
			Logger:   zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
}

// healthyTour builds a taxi tour that satisfies every check: one request from
// the ride start to the transit stop, legs matching the constant drive time
// plus the passenger change, and no slack around the depot legs.
func healthyTour(tourID, vehicleID, base int64) healthcheck.Tour {
	depot := companyDepot
	legDuration := constantDriveTime + taxi.PassengerChangeDuration
	pickupEnd := base + 5*dispatch.Minute
	dropoffStart := pickupEnd + legDuration
	return healthcheck.Tour{
		ID:        tourID,
		VehicleID: vehicleID,
		Company:   &depot,
		Departure: pickupEnd - constantDriveTime,
		Arrival:   dropoffStart + legDuration,
		Requests: []healthcheck.Request{
			{
				ID:         tourID * 10,
				Capacities: dispatch.Capacities{Passengers: 1},
				Events: []healthcheck.Event{
					{
						ID:                 tourID * 100,
						RequestID:          tourID * 10,
						IsPickup:           true,
						Coordinates:        rideStart,
						ScheduledTimeStart: base,
						ScheduledTimeEnd:   pickupEnd,
						PrevLegDuration:    constantDriveTime,
						NextLegDuration:    legDuration,
					},
					{
						ID:                 tourID*100 + 1,
						RequestID:          tourID * 10,
						IsPickup:           false,
						Coordinates:        transitStop,
						ScheduledTimeStart: dropoffStart,
						ScheduledTimeEnd:   dropoffStart + 4*dispatch.Minute,
						PrevLegDuration:    legDuration,
						NextLegDuration:    legDuration,
					},
				},
			},
		},
	}
}

func issueChecks(report *healthcheck.Report) []string {
	var checks []string
	for _, issue := range report.Issues {
		checks = append(checks, issue.Check)
	}
	return checks
}

const base = 100 * dispatch.Hour

func TestRunHealthySchedule(t *testing.T) {
	later := healthyTour(2, 7, base+2*dispatch.Hour)
	direct := int64(constantDriveTime)
	later.DirectDuration = &direct
	repo := &stubRepository{tours: []healthcheck.Tour{healthyTour(1, 7, base), later}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "issues: %v", report.Issues)
}

func TestRunDetectsMissingDropoff(t *testing.T) {
	tour := healthyTour(1, 7, base)
	tour.Requests[0].Events = tour.Requests[0].Events[:1]
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Contains(t, issueChecks(report), "request_events")
}

func TestRunDetectsCancellationMismatch(t *testing.T) {
	tour := healthyTour(1, 7, base)
	tour.Requests[0].Events[0].Cancelled = true
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cancellation"}, issueChecks(report))
}

func TestRunDetectsNegativeCapacity(t *testing.T) {
	tour := healthyTour(1, 7, base)
	tour.Requests[0].Luggage = -1
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"capacities"}, issueChecks(report))
}

func TestRunDetectsOverlappingTours(t *testing.T) {
	repo := &stubRepository{tours: []healthcheck.Tour{
		healthyTour(1, 7, base),
		healthyTour(2, 7, base+10*dispatch.Minute),
	}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tour_overlap"}, issueChecks(report))
}

func TestRunDetectsWindowGrowth(t *testing.T) {
	tour := healthyTour(1, 7, base)
	// A pickup window wider than its buffer means a later insertion shifted
	// the stop further than the customer was promised.
	tour.Requests[0].Events[0].ScheduledTimeStart = base - 11*dispatch.Minute
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"window_size"}, issueChecks(report))
}

func TestRunDetectsShortLeg(t *testing.T) {
	tour := healthyTour(1, 7, base)
	tour.Requests[0].Events[0].NextLegDuration = 5 * dispatch.Minute
	tour.Requests[0].Events[1].PrevLegDuration = 5 * dispatch.Minute
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"leg_duration"}, issueChecks(report))
}

func TestRunDetectsLegDisagreement(t *testing.T) {
	tour := healthyTour(1, 7, base)
	tour.Requests[0].Events[1].PrevLegDuration += dispatch.Minute
	repo := &stubRepository{tours: []healthcheck.Tour{tour}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"leg_duration"}, issueChecks(report))
}

func TestRunDetectsDirectDurationMismatch(t *testing.T) {
	later := healthyTour(2, 7, base+2*dispatch.Hour)
	direct := 25 * dispatch.Minute
	later.DirectDuration = &direct
	repo := &stubRepository{tours: []healthcheck.Tour{healthyTour(1, 7, base), later}}

	report, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"direct_duration"}, issueChecks(report))
}

func TestRunScopesToVehicle(t *testing.T) {
	broken := healthyTour(2, 8, base)
	broken.Requests[0].Events = broken.Requests[0].Events[:1]
	repo := &stubRepository{tours: []healthcheck.Tour{healthyTour(1, 7, base), broken}}
	service := newService(repo)

	vehicleID := int64(7)
	report, err := service.Run(context.Background(), healthcheck.RunOptions{VehicleID: &vehicleID})
	require.NoError(t, err)
	assert.True(t, report.Healthy())

	report, err = service.Run(context.Background(), healthcheck.RunOptions{})
	require.NoError(t, err)
	assert.False(t, report.Healthy())
}

func TestRunDayWindow(t *testing.T) {
	repo := &stubRepository{}
	day := int64(base)

	_, err := newService(repo).Run(context.Background(), healthcheck.RunOptions{DayStart: &day})
	require.NoError(t, err)

	require.NotEmpty(t, repo.windows)
	for _, window := range repo.windows {
		require.NotNil(t, window)
		assert.Equal(t, interval.New(day, day+dispatch.Day), *window)
	}
}
