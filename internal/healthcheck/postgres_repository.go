package healthcheck

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// PostgresRepository reads the persisted schedule from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL health check repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ToursWithRequests returns the tours with their requests and events. The
// tour's direct duration is read off its earliest event, where bookings store
// it.
func (r *PostgresRepository) ToursWithRequests(
	ctx context.Context,
	includeCancelled bool,
	window *interval.Interval,
	vehicleID *int64,
) ([]Tour, error) {
	var windowStart, windowEnd *int64
	if window != nil {
		windowStart, windowEnd = &window.Start, &window.End
	}

	rows, err := r.pool.Query(ctx, `
		SELECT tour.id, tour.vehicle, COALESCE(tour.cancelled, false),
		       company.lat, company.lng,
		       tour.departure, tour.arrival,
		       request.id, request.cancelled,
		       request.passengers, request.wheelchairs, request.bikes, request.luggage,
		       event.id, event.is_pickup, event.lat, event.lng,
		       event.scheduled_time_start, event.scheduled_time_end,
		       event.prev_leg_duration, event.next_leg_duration,
		       COALESCE(event.event_group, ''), event.direct_duration
		FROM tour
		JOIN vehicle ON tour.vehicle = vehicle.id
		JOIN company ON vehicle.company = company.id
		JOIN request ON request.tour = tour.id
		JOIN event ON event.request = request.id
		WHERE ($1 OR NOT request.cancelled)
		  AND ($2::bigint IS NULL OR tour.departure < $3)
		  AND ($2::bigint IS NULL OR tour.arrival > $2)
		  AND ($4::bigint IS NULL OR tour.vehicle = $4)
		ORDER BY tour.id, request.id, event.scheduled_time_start, event.scheduled_time_end
	`, includeCancelled, windowStart, windowEnd, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("query tours with requests: %w", err)
	}
	defer rows.Close()

	var tours []Tour
	tourIdx := make(map[int64]int)
	requestIdx := make(map[int64]int)
	for rows.Next() {
		var (
			t              Tour
			req            Request
			e              Event
			companyLat     float64
			companyLng     float64
			directDuration *int64
		)
		err := rows.Scan(&t.ID, &t.VehicleID, &t.Cancelled,
			&companyLat, &companyLng,
			&t.Departure, &t.Arrival,
			&req.ID, &req.Cancelled,
			&req.Passengers, &req.Wheelchairs, &req.Bikes, &req.Luggage,
			&e.ID, &e.IsPickup, &e.Lat, &e.Lng,
			&e.ScheduledTimeStart, &e.ScheduledTimeEnd,
			&e.PrevLegDuration, &e.NextLegDuration,
			&e.EventGroup, &directDuration)
		if err != nil {
			return nil, fmt.Errorf("scan tour row: %w", err)
		}
		e.RequestID = req.ID
		e.Cancelled = req.Cancelled
		e.RequestCancelled = req.Cancelled

		ti, ok := tourIdx[t.ID]
		if !ok {
			t.Company = &dispatch.Coordinates{Lat: companyLat, Lng: companyLng}
			tours = append(tours, t)
			ti = len(tours) - 1
			tourIdx[t.ID] = ti
		}
		tour := &tours[ti]
		if directDuration != nil && tour.DirectDuration == nil {
			tour.DirectDuration = directDuration
		}

		ri, ok := requestIdx[req.ID]
		if !ok {
			tour.Requests = append(tour.Requests, req)
			ri = len(tour.Requests) - 1
			requestIdx[req.ID] = ri
		}
		tour.Requests[ri].Events = append(tour.Requests[ri].Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tour rows: %w", err)
	}
	return tours, nil
}
