package taxi

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// commitRetries bounds how often a serialization conflict is retried before
// the booking fails.
const commitRetries = 5

// PostgresRepository is a PostgreSQL implementation of Repository. Bookings
// run in serializable transactions and retry on conflict, so two customers
// racing for the same vehicle slot cannot both win it.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL booking repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CommitBooking applies one booking atomically and returns the request id.
func (r *PostgresRepository) CommitBooking(ctx context.Context, commit *BookingCommit) (int64, error) {
	var requestID int64
	operation := func() error {
		id, err := r.commitOnce(ctx, commit)
		if err != nil {
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		requestID = id
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), commitRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return 0, err
	}
	return requestID, nil
}

func (r *PostgresRepository) commitOnce(ctx context.Context, commit *BookingCommit) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("begin booking transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tourID, err := upsertTour(ctx, tx, commit)
	if err != nil {
		return 0, err
	}
	if len(commit.MergeTourList) > 0 {
		if err := mergeTours(ctx, tx, tourID, commit.MergeTourList); err != nil {
			return 0, err
		}
	}

	var requestID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO request (passengers, wheelchairs, bikes, luggage, customer, tour, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING id
	`, commit.Required.Passengers, commit.Required.Wheelchairs, commit.Required.Bikes,
		commit.Required.Luggage, commit.CustomerID, tourID).Scan(&requestID)
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}

	for _, event := range []EventInsert{commit.Pickup, commit.Dropoff} {
		_, err = tx.Exec(ctx, `
			INSERT INTO event (request, is_pickup, lat, lng, address,
				scheduled_time_start, scheduled_time_end, communicated_time,
				prev_leg_duration, next_leg_duration, event_group)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, requestID, event.IsPickup, event.Lat, event.Lng, event.Address,
			event.ScheduledTimeStart, event.ScheduledTimeEnd, event.CommunicatedTime,
			event.PrevLegDuration, event.NextLegDuration, event.EventGroup)
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}

	if err := applyUpdates(ctx, tx, tourID, commit); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit booking transaction: %w", err)
	}
	return requestID, nil
}

// upsertTour extends the target tour's bounds or opens a new tour.
func upsertTour(ctx context.Context, tx pgx.Tx, commit *BookingCommit) (int64, error) {
	if commit.Tour != nil {
		_, err := tx.Exec(ctx, `
			UPDATE tour
			SET departure = COALESCE($1, departure),
				arrival = COALESCE($2, arrival)
			WHERE id = $3
		`, commit.Departure, commit.Arrival, *commit.Tour)
		if err != nil {
			return 0, fmt.Errorf("update tour bounds: %w", err)
		}
		return *commit.Tour, nil
	}

	if commit.Departure == nil || commit.Arrival == nil {
		return 0, errors.New("new tour requires departure and arrival")
	}
	var tourID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO tour (departure, arrival, vehicle)
		VALUES ($1, $2, $3)
		RETURNING id
	`, *commit.Departure, *commit.Arrival, commit.VehicleID).Scan(&tourID)
	if err != nil {
		return 0, fmt.Errorf("insert tour: %w", err)
	}
	return tourID, nil
}

// mergeTours moves the requests of the absorbed tours into the target tour
// and removes the emptied tours.
func mergeTours(ctx context.Context, tx pgx.Tx, tourID int64, mergeTourList []int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE request SET tour = $1 WHERE tour = ANY($2)
	`, tourID, mergeTourList); err != nil {
		return fmt.Errorf("merge tours: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM tour WHERE id = ANY($1) AND id <> $2
	`, mergeTourList, tourID); err != nil {
		return fmt.Errorf("drop merged tours: %w", err)
	}
	return nil
}

// applyUpdates pushes the neighbour event updates in one batch.
func applyUpdates(ctx context.Context, tx pgx.Tx, tourID int64, commit *BookingCommit) error {
	batch := &pgx.Batch{}
	for _, u := range commit.EventGroupUpdates {
		batch.Queue(`UPDATE event SET event_group = $1 WHERE id = $2`, u.EventGroup, u.EventID)
	}
	for _, u := range commit.ScheduledTimes {
		if u.Start {
			batch.Queue(`UPDATE event SET scheduled_time_start = $1 WHERE id = $2`, u.Time, u.EventID)
		} else {
			batch.Queue(`UPDATE event SET scheduled_time_end = $1 WHERE id = $2`, u.Time, u.EventID)
		}
	}
	for _, u := range commit.PrevLegDurations {
		if u.Duration == nil {
			continue
		}
		batch.Queue(`UPDATE event SET prev_leg_duration = $1 WHERE id = $2`, *u.Duration, u.EventID)
	}
	for _, u := range commit.NextLegDurations {
		if u.Duration == nil {
			continue
		}
		batch.Queue(`UPDATE event SET next_leg_duration = $1 WHERE id = $2`, *u.Duration, u.EventID)
	}
	queueDirectDuration(batch, commit.DirectDurations.ThisTour, tourID)
	queueDirectDuration(batch, commit.DirectDurations.NextTour, tourID)
	if batch.Len() == 0 {
		return nil
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("apply event updates: %w", err)
		}
	}
	return results.Close()
}

// queueDirectDuration stores a tour's direct driving duration on the tour's
// earliest event. A nil tour id targets the tour created by this booking.
func queueDirectDuration(batch *pgx.Batch, d *TourDirectDuration, fallbackTourID int64) {
	if d == nil {
		return
	}
	tourID := fallbackTourID
	if d.TourID != nil {
		tourID = *d.TourID
	}
	batch.Queue(`
		UPDATE event SET direct_duration = $1
		WHERE id = (
			SELECT event.id
			FROM event
			JOIN request ON event.request = request.id
			WHERE request.tour = $2
			ORDER BY event.scheduled_time_start, event.scheduled_time_end
			LIMIT 1
		)
	`, d.DrivingDuration, tourID)
}

// CancelRequest marks a request cancelled.
func (r *PostgresRepository) CancelRequest(ctx context.Context, requestID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE request SET cancelled = true WHERE id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", requestID, ErrRequestNotFound)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
