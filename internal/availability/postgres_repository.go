package availability

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// wgs84 is the SRID used for all stored geometries.
const wgs84 = 4326

// PostgresRepository is a PostgreSQL implementation of Repository backed by
// PostGIS zone geometries.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL availability repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CompaniesInZone returns companies whose service zone covers the point.
func (r *PostgresRepository) CompaniesInZone(ctx context.Context, point dispatch.Coordinates) ([]CompanyRow, error) {
	query := `
		SELECT company.id, company.zone, company.lat, company.lng
		FROM company
		JOIN zone ON zone.id = company.zone
		WHERE company.lat IS NOT NULL
		  AND company.lng IS NOT NULL
		  AND ST_Covers(zone.area, ST_SetSRID(ST_MakePoint($1, $2), $3))
	`

	rows, err := r.pool.Query(ctx, query, point.Lng, point.Lat, wgs84)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []CompanyRow
	for rows.Next() {
		var c CompanyRow
		if err := rows.Scan(&c.ID, &c.ZoneID, &c.Lat, &c.Lng); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// EligibleVehicles returns vehicles of the companies that can serve the
// required capacities. Free seats may hold luggage, hence the joint bound.
func (r *PostgresRepository) EligibleVehicles(ctx context.Context, companyIDs []int64, required dispatch.Capacities) ([]VehicleRow, error) {
	query := `
		SELECT id, company, passengers, wheelchairs, bikes, luggage
		FROM vehicle
		WHERE company = ANY($1)
		  AND passengers >= $2
		  AND wheelchairs >= $3
		  AND bikes >= $4
		  AND luggage >= $2 + $5 - passengers
	`

	rows, err := r.pool.Query(ctx, query, companyIDs,
		required.Passengers, required.Wheelchairs, required.Bikes, required.Luggage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []VehicleRow
	for rows.Next() {
		var v VehicleRow
		if err := rows.Scan(&v.ID, &v.CompanyID, &v.Passengers, &v.Wheelchairs, &v.Bikes, &v.Luggage); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// Availabilities returns raw availability rows intersecting the window.
func (r *PostgresRepository) Availabilities(ctx context.Context, vehicleIDs []int64, window interval.Interval) ([]AvailabilityRow, error) {
	query := `
		SELECT vehicle, start_time, end_time
		FROM availability
		WHERE vehicle = ANY($1)
		  AND start_time <= $2
		  AND end_time >= $3
	`

	rows, err := r.pool.Query(ctx, query, vehicleIDs, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var availabilities []AvailabilityRow
	for rows.Next() {
		var a AvailabilityRow
		if err := rows.Scan(&a.VehicleID, &a.Start, &a.End); err != nil {
			return nil, err
		}
		availabilities = append(availabilities, a)
	}
	return availabilities, rows.Err()
}

// Tours returns tours intersecting the window, each with its events sorted by
// scheduled window start.
func (r *PostgresRepository) Tours(ctx context.Context, vehicleIDs []int64, window interval.Interval) ([]TourRow, error) {
	query := `
		SELECT tour.id, tour.vehicle, tour.departure, tour.arrival,
			event.id, request.id, event.is_pickup,
			event.lat, event.lng,
			event.scheduled_time_start, event.scheduled_time_end,
			event.communicated_time,
			event.prev_leg_duration, event.next_leg_duration,
			event.direct_duration, event.event_group,
			request.passengers, request.wheelchairs, request.bikes, request.luggage
		FROM tour
		JOIN request ON request.tour = tour.id
		JOIN event ON event.request = request.id
		WHERE tour.vehicle = ANY($1)
		  AND tour.departure <= $2
		  AND tour.arrival >= $3
		  AND request.cancelled = false
		ORDER BY tour.id, event.scheduled_time_start, event.scheduled_time_end
	`

	rows, err := r.pool.Query(ctx, query, vehicleIDs, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tours []TourRow
	byID := make(map[int64]int)
	for rows.Next() {
		var (
			tour       TourRow
			e          Event
			start, end int64
		)
		err := rows.Scan(
			&tour.ID, &tour.VehicleID, &tour.Departure, &tour.Arrival,
			&e.ID, &e.RequestID, &e.IsPickup,
			&e.Lat, &e.Lng,
			&start, &end,
			&e.CommunicatedTime,
			&e.PrevLegDuration, &e.NextLegDuration,
			&e.DirectDuration, &e.EventGroup,
			&e.Passengers, &e.Wheelchairs, &e.Bikes, &e.Luggage,
		)
		if err != nil {
			return nil, err
		}
		e.TourID = tour.ID
		e.Time = interval.New(start, end)
		e.Departure = tour.Departure
		e.Arrival = tour.Arrival

		idx, ok := byID[tour.ID]
		if !ok {
			idx = len(tours)
			byID[tour.ID] = idx
			tours = append(tours, tour)
		}
		tours[idx].Events = append(tours[idx].Events, e)
	}
	return tours, rows.Err()
}

// CoveredBusStops reports which stops lie inside the zone covering the point.
func (r *PostgresRepository) CoveredBusStops(ctx context.Context, point dispatch.Coordinates, stops []dispatch.Coordinates) ([]bool, error) {
	covered := make([]bool, len(stops))
	if len(stops) == 0 {
		return covered, nil
	}

	lats := make([]float64, len(stops))
	lngs := make([]float64, len(stops))
	for i, s := range stops {
		lats[i] = s.Lat
		lngs[i] = s.Lng
	}

	query := `
		SELECT stop.ord
		FROM zone,
			unnest($4::float8[], $5::float8[]) WITH ORDINALITY AS stop(lat, lng, ord)
		WHERE ST_Covers(zone.area, ST_SetSRID(ST_MakePoint($1, $2), $3))
		  AND ST_Covers(zone.area, ST_SetSRID(ST_MakePoint(stop.lng, stop.lat), $3))
	`

	rows, err := r.pool.Query(ctx, query, point.Lng, point.Lat, wgs84, lats, lngs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ord int
		if err := rows.Scan(&ord); err != nil {
			return nil, err
		}
		if ord >= 1 && ord <= len(stops) {
			covered[ord-1] = true
		}
	}
	return covered, rows.Err()
}
