package taxi

import (
	"context"
	"math"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// WhitelistRequest asks which of the candidate transit connections a taxi leg
// can serve: the first-mile stops near the start, the last-mile stops near
// the target, and optionally the direct ride itself.
type WhitelistRequest struct {
	Start          dispatch.Coordinates `json:"start"`
	Target         dispatch.Coordinates `json:"target"`
	StartBusStops  []BusStop            `json:"startBusStops"`
	TargetBusStops []BusStop            `json:"targetBusStops"`
	DirectTimes    []int64              `json:"directTimes"`
	StartFixed     bool                 `json:"startFixed"`
	Capacities     dispatch.Capacities  `json:"capacities"`
}

// WhitelistEntry is one feasible taxi leg, signed so it can be booked later.
type WhitelistEntry struct {
	PickupTime        int64   `json:"pickupTime"`
	DropoffTime       int64   `json:"dropoffTime"`
	PassengerDuration int64   `json:"passengerDuration"`
	Cost              float64 `json:"cost"`
	Signature         string  `json:"signature,omitempty"`
}

// WhitelistResponse mirrors the request shape: entries are aligned with the
// requested stops and times, nil where no vehicle can serve the leg.
type WhitelistResponse struct {
	Start  [][]*WhitelistEntry `json:"start"`
	Target [][]*WhitelistEntry `json:"target"`
	Direct []*WhitelistEntry   `json:"direct"`
}

// Whitelist evaluates all candidate legs read-only, without reserving
// anything. The first mile fixes the arrival at the bus stop, the last mile
// fixes the departure from it.
func (s *Service) Whitelist(ctx context.Context, req WhitelistRequest) (*WhitelistResponse, error) {
	startResults, err := s.whitelistGroup(ctx, req.Start, req.StartBusStops, false, req.Capacities)
	if err != nil {
		return nil, err
	}
	targetResults, err := s.whitelistGroup(ctx, req.Target, req.TargetBusStops, true, req.Capacities)
	if err != nil {
		return nil, err
	}

	var directResults [][]*Insertion
	if len(req.DirectTimes) > 0 {
		userChosen, busStop := req.Start, req.Target
		if req.StartFixed {
			userChosen, busStop = req.Target, req.Start
		}
		directResults, err = s.whitelistGroup(ctx, userChosen,
			[]BusStop{{Coordinates: busStop, Times: req.DirectTimes}}, req.StartFixed, req.Capacities)
		if err != nil {
			return nil, err
		}
	}

	resp := &WhitelistResponse{
		Start:  s.signEntries(req.StartBusStops, startResults, req.Start, false, true),
		Target: s.signEntries(req.TargetBusStops, targetResults, req.Target, true, false),
	}
	if len(directResults) > 0 {
		direct := s.signEntries(
			[]BusStop{{Coordinates: req.Target, Times: req.DirectTimes}},
			directResults, req.Start, req.StartFixed, true)
		resp.Direct = direct[0]
	} else {
		resp.Direct = make([]*WhitelistEntry, len(req.DirectTimes))
	}
	return resp, nil
}

// whitelistGroup evaluates one set of bus stops against a fresh snapshot.
// startFixed states whether the bus stop is the pickup.
func (s *Service) whitelistGroup(
	ctx context.Context,
	userChosen dispatch.Coordinates,
	busStops []BusStop,
	startFixed bool,
	required dispatch.Capacities,
) ([][]*Insertion, error) {
	empty := make([][]*Insertion, len(busStops))
	for i, bs := range busStops {
		empty[i] = make([]*Insertion, len(bs.Times))
	}
	earliest, latest := int64(math.MaxInt64), int64(math.MinInt64)
	for _, bs := range busStops {
		for _, t := range bs.Times {
			earliest = min(earliest, t)
			latest = max(latest, t)
		}
	}
	if earliest > latest {
		return empty, nil
	}
	searchInterval := interval.New(earliest, latest)
	expanded := searchInterval.Expand(6*s.availability.MaxTravel(), 6*s.availability.MaxTravel())

	stopCoords := make([]dispatch.Coordinates, len(busStops))
	for i := range busStops {
		stopCoords[i] = busStops[i].Coordinates
	}
	snapshot, err := s.availability.Snapshot(ctx, userChosen, required, searchInterval, stopCoords)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Companies) == 0 {
		return empty, nil
	}

	covered := make([]BusStop, 0, len(busStops))
	for i, idx := range snapshot.BusStopFilter {
		if idx != -1 {
			covered = append(covered, busStops[i])
		}
	}
	if len(covered) == 0 {
		return empty, nil
	}

	results, err := s.EvaluateRequest(ctx, snapshot.Companies, expanded, userChosen,
		covered, required, startFixed, nil)
	if err != nil {
		return nil, err
	}

	// Scatter the compacted results back onto the requested stop order.
	for i, idx := range snapshot.BusStopFilter {
		if idx != -1 {
			empty[i] = results[idx]
		}
	}
	return empty, nil
}

// signEntries shapes insertions into response entries, signing each offered
// leg. userChosenIsStart states whether the user-chosen place is the leg's
// start.
func (s *Service) signEntries(
	busStops []BusStop,
	results [][]*Insertion,
	userChosen dispatch.Coordinates,
	startFixed bool,
	userChosenIsStart bool,
) [][]*WhitelistEntry {
	entries := make([][]*WhitelistEntry, len(busStops))
	for i := range busStops {
		entries[i] = make([]*WhitelistEntry, len(busStops[i].Times))
		if i >= len(results) {
			continue
		}
		for j, insertion := range results[i] {
			if j >= len(entries[i]) || insertion == nil {
				continue
			}
			entry := &WhitelistEntry{
				PickupTime:        insertion.PickupTime,
				DropoffTime:       insertion.DropoffTime,
				PassengerDuration: insertion.PassengerDuration,
				Cost:              insertion.Cost,
			}
			if s.signer != nil {
				c := booking.ExpectedConnection{
					Start:         userChosen,
					Target:        busStops[i].Coordinates,
					StartTime:     insertion.PickupTime,
					TargetTime:    insertion.DropoffTime,
					RequestedTime: busStops[i].Times[j],
					StartFixed:    startFixed,
				}
				if !userChosenIsStart {
					c.Start, c.Target = c.Target, c.Start
				}
				if signature, err := s.signer.Sign(c); err == nil {
					entry.Signature = signature
				} else {
					s.logger.Warn().Err(err).Msg("signing whitelist entry failed")
				}
			}
			entries[i][j] = entry
		}
	}
	return entries
}
