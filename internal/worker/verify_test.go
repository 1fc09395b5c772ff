package worker_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/worker"
)

// stubScheduleRepository serves a fixed schedule and records the filters it
// was queried with.
type stubScheduleRepository struct {
	tours      []healthcheck.Tour
	err        error
	vehicleIDs []*int64
}

func (r *stubScheduleRepository) ToursWithRequests(_ context.Context, _ bool, _ *interval.Interval, vehicleID *int64) ([]healthcheck.Tour, error) {
	r.vehicleIDs = append(r.vehicleIDs, vehicleID)
	if r.err != nil {
		return nil, r.err
	}
	return r.tours, nil
}

func newVerifyJob(repo healthcheck.Repository) *worker.VerifyJob {
	logger := zerolog.New(io.Discard)
	health := healthcheck.NewService(healthcheck.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	return worker.NewVerifyJob(worker.VerifyJobConfig{
		Health: health,
		Logger: logger,
	})
}

// brokenTour returns a tour whose only request is missing its dropoff stop.
func brokenTour() healthcheck.Tour {
	return healthcheck.Tour{
		ID:        1,
		VehicleID: 7,
		Departure: 1000,
		Arrival:   5000,
		Requests: []healthcheck.Request{
			{
				ID:         1,
				Capacities: dispatch.Capacities{Passengers: 1},
				Events: []healthcheck.Event{
					{
						ID:                 1,
						RequestID:          1,
						IsPickup:           true,
						ScheduledTimeStart: 2000,
						ScheduledTimeEnd:   2500,
					},
				},
			},
		},
	}
}

func TestDefaultVerifyConfig(t *testing.T) {
	cfg := worker.DefaultVerifyConfig()

	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestVerifyJob_Run_Healthy(t *testing.T) {
	job := newVerifyJob(&stubScheduleRepository{})

	result := job.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Healthy())
	assert.Empty(t, result.Issues)

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRuns)
	assert.Equal(t, int64(0), metrics.RunsWithIssues)
	assert.Equal(t, int64(0), metrics.TotalIssues)
	assert.False(t, metrics.LastRunAt.IsZero())
}

func TestVerifyJob_Run_FindsIssues(t *testing.T) {
	repo := &stubScheduleRepository{tours: []healthcheck.Tour{brokenTour()}}
	job := newVerifyJob(repo)

	result := job.Run(context.Background())

	require.NoError(t, result.Err)
	assert.False(t, result.Healthy())
	assert.NotEmpty(t, result.Issues)

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.RunsWithIssues)
	assert.Equal(t, int64(len(result.Issues)), metrics.TotalIssues)
}

func TestVerifyJob_Run_RepositoryError(t *testing.T) {
	repo := &stubScheduleRepository{err: errors.New("connection refused")}
	job := newVerifyJob(repo)

	result := job.Run(context.Background())

	require.Error(t, result.Err)
	assert.False(t, result.Healthy())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.FailedRuns)
}

func TestVerifyJob_RunVehicle_ScopesQuery(t *testing.T) {
	repo := &stubScheduleRepository{}
	job := newVerifyJob(repo)

	result := job.RunVehicle(context.Background(), 7)

	require.NoError(t, result.Err)
	require.NotEmpty(t, repo.vehicleIDs)
	for _, id := range repo.vehicleIDs {
		require.NotNil(t, id)
		assert.Equal(t, int64(7), *id)
	}
}

func TestVerifyJob_MetricsSnapshot(t *testing.T) {
	job := newVerifyJob(&stubScheduleRepository{})

	job.Run(context.Background())
	job.Run(context.Background())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(2), snapshot["total_runs"])
	assert.Equal(t, int64(0), snapshot["failed_runs"])
	assert.NotEmpty(t, snapshot["last_run_duration"])
}
