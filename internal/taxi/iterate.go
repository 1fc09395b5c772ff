package taxi

import (
	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

// InsertionInfo identifies one candidate insertion position during
// enumeration. InsertionIdx increases monotonically across the whole
// enumeration and indexes the flat routing result arrays.
type InsertionInfo struct {
	CompanyIdx   int
	Vehicle      *availability.Vehicle
	IdxInEvents  int
	InsertionIdx int
	Range        dispatch.Range
}

// iterateAllInsertions visits every insertion position of every
// capacity-feasible range of every vehicle, in a fixed order. Routing
// gathering and evaluation rely on visiting the same positions in the same
// order.
func iterateAllInsertions(
	companies []availability.Company,
	insertionRanges map[int64][]dispatch.Range,
	fn func(info InsertionInfo),
) {
	insertionIdx := 0
	for companyIdx := range companies {
		for _, vehicle := range companies[companyIdx].Vehicles {
			for _, r := range insertionRanges[vehicle.ID] {
				for idxInEvents := r.EarliestPickup; idxInEvents <= r.LatestDropoff; idxInEvents++ {
					fn(InsertionInfo{
						CompanyIdx:   companyIdx,
						Vehicle:      vehicle,
						IdxInEvents:  idxInEvents,
						InsertionIdx: insertionIdx,
						Range:        r,
					})
					insertionIdx++
				}
			}
		}
	}
}

// countInsertions returns the total number of positions iterateAllInsertions
// will visit.
func countInsertions(companies []availability.Company, insertionRanges map[int64][]dispatch.Range) int {
	count := 0
	for companyIdx := range companies {
		for _, vehicle := range companies[companyIdx].Vehicles {
			for _, r := range insertionRanges[vehicle.ID] {
				count += r.LatestDropoff - r.EarliestPickup + 1
			}
		}
	}
	return count
}
