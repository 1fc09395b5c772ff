package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/healthcheck"
)

// VerifyJob runs schedule consistency checks.
type VerifyJob struct {
	config VerifyConfig
	health *healthcheck.Service
	logger zerolog.Logger

	// Metrics
	metrics *VerifyMetrics
}

// VerifyMetrics tracks verification job statistics.
type VerifyMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	FailedRuns     int64
	RunsWithIssues int64
	TotalIssues    int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// VerifyJobConfig holds configuration for creating a VerifyJob.
type VerifyJobConfig struct {
	Config VerifyConfig
	Health *healthcheck.Service
	Logger zerolog.Logger
}

// NewVerifyJob creates a new verification job processor.
func NewVerifyJob(cfg VerifyJobConfig) *VerifyJob {
	config := cfg.Config
	if config.Interval == 0 {
		config = DefaultVerifyConfig()
	}

	return &VerifyJob{
		config:  config,
		health:  cfg.Health,
		logger:  cfg.Logger,
		metrics: &VerifyMetrics{},
	}
}

// VerifyResult contains the result of one verification run.
type VerifyResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Issues    []healthcheck.Issue
	Err       error
}

// Healthy reports whether the run completed without finding issues.
func (r *VerifyResult) Healthy() bool {
	return r.Err == nil && len(r.Issues) == 0
}

// Run verifies the whole persisted schedule.
func (j *VerifyJob) Run(ctx context.Context) *VerifyResult {
	return j.run(ctx, healthcheck.RunOptions{})
}

// RunVehicle verifies the schedule of a single vehicle. Used for the
// incremental check after a tour change.
func (j *VerifyJob) RunVehicle(ctx context.Context, vehicleID int64) *VerifyResult {
	return j.run(ctx, healthcheck.RunOptions{VehicleID: &vehicleID})
}

func (j *VerifyJob) run(ctx context.Context, opts healthcheck.RunOptions) *VerifyResult {
	startTime := time.Now()
	result := &VerifyResult{StartTime: startTime}

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	report, err := j.health.Run(runCtx, opts)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	if err != nil {
		result.Err = err
		j.updateMetrics(result)
		j.logger.Error().Err(err).
			Dur("duration", result.Duration).
			Msg("schedule verification failed")
		return result
	}
	result.Issues = report.Issues

	j.updateMetrics(result)

	event := j.logger.Info()
	if len(result.Issues) > 0 {
		event = j.logger.Warn()
	}
	event.
		Dur("duration", result.Duration).
		Int("issues", len(result.Issues)).
		Msg("schedule verification completed")

	return result
}

func (j *VerifyJob) updateMetrics(result *VerifyResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if result.Err != nil {
		j.metrics.FailedRuns++
	}
	if len(result.Issues) > 0 {
		j.metrics.RunsWithIssues++
	}
	j.metrics.TotalIssues += int64(len(result.Issues))
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *VerifyJob) GetMetrics() VerifyMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return VerifyMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		FailedRuns:      j.metrics.FailedRuns,
		RunsWithIssues:  j.metrics.RunsWithIssues,
		TotalIssues:     j.metrics.TotalIssues,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *VerifyJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"runs_with_issues":  m.RunsWithIssues,
		"total_issues":      m.TotalIssues,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
