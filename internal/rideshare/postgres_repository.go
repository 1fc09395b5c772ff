package rideshare

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// acceptRetries bounds how often a serialization conflict is retried before
// the accept fails.
const acceptRetries = 5

// PostgresRepository is a PostgreSQL implementation of Repository. Accepts
// run in serializable transactions and retry on conflict, so a driver
// accepting two requests at once cannot corrupt the tour schedule.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL ride-share repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const offerColumns = `
	t.id, t.vehicle, v.owner, t.departure, t.arrival,
	v.passengers, v.wheelchairs, v.bikes, v.luggage`

// OpenTours returns the published tours overlapping the window whose vehicle
// fits the required capacities.
func (r *PostgresRepository) OpenTours(
	ctx context.Context,
	window interval.Interval,
	required dispatch.Capacities,
) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+offerColumns+`
		FROM ride_share_tour t
		JOIN ride_share_vehicle v ON t.vehicle = v.id
		WHERE t.cancelled = false
		  AND t.departure < $1 AND t.arrival > $2
		  AND v.passengers >= $3 AND v.wheelchairs >= $4
		  AND v.bikes >= $5 AND v.luggage >= $6
		ORDER BY t.id
	`, window.End, window.Start, required.Passengers, required.Wheelchairs,
		required.Bikes, required.Luggage)
	if err != nil {
		return nil, fmt.Errorf("query open tours: %w", err)
	}
	offers, err := scanOffers(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadEvents(ctx, offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// TourByRequest returns the tour containing the given request, nil when the
// request is unknown or cancelled.
func (r *PostgresRepository) TourByRequest(ctx context.Context, requestID int64) (*Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+offerColumns+`
		FROM ride_share_tour t
		JOIN ride_share_vehicle v ON t.vehicle = v.id
		JOIN ride_share_request req ON req.tour = t.id
		WHERE req.id = $1 AND req.cancelled = false
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query tour by request: %w", err)
	}
	offers, err := scanOffers(rows)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, nil
	}
	if err := r.loadEvents(ctx, offers); err != nil {
		return nil, err
	}
	return &offers[0], nil
}

func scanOffers(rows pgx.Rows) ([]Offer, error) {
	defer rows.Close()
	var offers []Offer
	for rows.Next() {
		var o Offer
		err := rows.Scan(&o.ID, &o.VehicleID, &o.Owner, &o.Departure, &o.Arrival,
			&o.Passengers, &o.Wheelchairs, &o.Bikes, &o.Luggage)
		if err != nil {
			return nil, fmt.Errorf("scan tour: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tours: %w", err)
	}
	return offers, nil
}

// loadEvents attaches each tour's stops, accepted and pending, ordered by
// scheduled window.
func (r *PostgresRepository) loadEvents(ctx context.Context, offers []Offer) error {
	if len(offers) == 0 {
		return nil
	}
	tourIDs := make([]int64, len(offers))
	byTour := make(map[int64]*Offer, len(offers))
	for i := range offers {
		tourIDs[i] = offers[i].ID
		byTour[offers[i].ID] = &offers[i]
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.request, req.tour, e.is_pickup, req.pending,
		       req.start_fixed, req.bus_stop_time,
		       e.lat, e.lng,
		       req.passengers, 0, 0, req.luggage,
		       e.scheduled_time_start, e.scheduled_time_end, e.communicated_time,
		       e.prev_leg_duration, e.next_leg_duration,
		       COALESCE(e.event_group, ''),
		       t.departure, t.arrival
		FROM ride_share_event e
		JOIN ride_share_request req ON e.request = req.id
		JOIN ride_share_tour t ON req.tour = t.id
		WHERE req.tour = ANY($1) AND req.cancelled = false
		ORDER BY req.tour, e.scheduled_time_start, e.scheduled_time_end
	`, tourIDs)
	if err != nil {
		return fmt.Errorf("query tour events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Event
		err := rows.Scan(&e.ID, &e.RequestID, &e.TourID, &e.IsPickup, &e.Pending,
			&e.StartFixed, &e.BusStopTime,
			&e.Lat, &e.Lng,
			&e.Passengers, &e.Wheelchairs, &e.Bikes, &e.Luggage,
			&e.Time.Start, &e.Time.End, &e.CommunicatedTime,
			&e.PrevLegDuration, &e.NextLegDuration,
			&e.EventGroup,
			&e.Departure, &e.Arrival)
		if err != nil {
			return fmt.Errorf("scan tour event: %w", err)
		}
		if offer, ok := byTour[e.TourID]; ok {
			offer.Events = append(offer.Events, e)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read tour events: %w", err)
	}
	return nil
}

// CreatePendingRequest stores a matched request awaiting the driver's
// approval. The stops are persisted without an event group; groups are
// assigned when the driver accepts.
func (r *PostgresRepository) CreatePendingRequest(ctx context.Context, commit *RequestCommit) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("begin request transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var requestID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO ride_share_request
			(passengers, luggage, customer, bus_stop_time, requested_time,
			 start_fixed, tour, pending, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, false)
		RETURNING id
	`, commit.Required.Passengers, commit.Required.Luggage, commit.CustomerID,
		commit.BusStopTime, commit.RequestedTime, commit.StartFixed, commit.TourID,
	).Scan(&requestID)
	if err != nil {
		return 0, fmt.Errorf("insert ride share request: %w", err)
	}

	for _, event := range []EventCommit{commit.Pickup, commit.Dropoff} {
		_, err = tx.Exec(ctx, `
			INSERT INTO ride_share_event
				(request, is_pickup, lat, lng,
				 scheduled_time_start, scheduled_time_end, communicated_time,
				 prev_leg_duration, next_leg_duration, event_group)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		`, requestID, event.IsPickup, event.Lat, event.Lng,
			event.ScheduledTimeStart, event.ScheduledTimeEnd, event.CommunicatedTime,
			event.PrevLegDuration, event.NextLegDuration)
		if err != nil {
			return 0, fmt.Errorf("insert ride share event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ride share request: %w", err)
	}
	return requestID, nil
}

// AcceptRequest flips a pending request to accepted and applies the event
// updates derived for it.
func (r *PostgresRepository) AcceptRequest(ctx context.Context, accept *AcceptCommit) error {
	operation := func() error {
		if err := r.acceptOnce(ctx, accept); err != nil {
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), acceptRetries), ctx)
	return backoff.Retry(operation, policy)
}

func (r *PostgresRepository) acceptOnce(ctx context.Context, accept *AcceptCommit) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE ride_share_request SET pending = false
		WHERE id = $1 AND pending = true AND cancelled = false
	`, accept.RequestID)
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d is not pending", accept.RequestID)
	}

	for _, ev := range []struct {
		id     int64
		commit EventCommit
	}{
		{accept.PickupEventID, accept.Pickup},
		{accept.DropoffEventID, accept.Dropoff},
	} {
		_, err = tx.Exec(ctx, `
			UPDATE ride_share_event
			SET scheduled_time_start = $1, scheduled_time_end = $2,
			    communicated_time = $3, prev_leg_duration = $4,
			    next_leg_duration = $5, event_group = NULLIF($6, '')
			WHERE id = $7
		`, ev.commit.ScheduledTimeStart, ev.commit.ScheduledTimeEnd,
			ev.commit.CommunicatedTime, ev.commit.PrevLegDuration,
			ev.commit.NextLegDuration, ev.commit.EventGroup, ev.id)
		if err != nil {
			return fmt.Errorf("update accepted event: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, u := range accept.ScheduledTimes {
		if u.Start {
			batch.Queue(`UPDATE ride_share_event SET scheduled_time_start = $1 WHERE id = $2`, u.Time, u.EventID)
		} else {
			batch.Queue(`UPDATE ride_share_event SET scheduled_time_end = $1 WHERE id = $2`, u.Time, u.EventID)
		}
	}
	for _, u := range accept.PrevLegUpdates {
		batch.Queue(`UPDATE ride_share_event SET prev_leg_duration = $1 WHERE id = $2`, u.Duration, u.EventID)
	}
	for _, u := range accept.NextLegUpdates {
		batch.Queue(`UPDATE ride_share_event SET next_leg_duration = $1 WHERE id = $2`, u.Duration, u.EventID)
	}
	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("apply neighbour updates: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit accept transaction: %w", err)
	}
	return nil
}

// CancelRequest marks a request cancelled.
func (r *PostgresRepository) CancelRequest(ctx context.Context, requestID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ride_share_request SET cancelled = true WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("cancel ride share request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
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
