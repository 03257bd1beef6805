package engine

import "sort"

// HorizonCount is the number of forecast months a cycle is planned over,
// horizons 0 through HorizonCount-1. Payloads carry whatever months the
// forecast holds.
const HorizonCount = 5

// HorizonAllocation is the allocation sent for one forecast month.
type HorizonAllocation struct {
	Horizon int
	Value   int64
}

// PayloadEntry is one forecast detail as handed to the partner. Allocations
// is ordered by horizon and only holds the months present on the forecast.
type PayloadEntry struct {
	RecordID         string
	DealerForecastID string
	ModelVariant     string
	Allocations      []HorizonAllocation
}

// PayloadMonth is a persisted forecast month feeding the payload.
type PayloadMonth struct {
	ForecastMonth  int
	HMSIAllocation int64
}

// PayloadDetail is a persisted, non-deleted forecast detail with its months.
type PayloadDetail struct {
	ForecastDetailID string
	ForecastID       string
	ModelVariant     string
	Months           []PayloadMonth
}

// SkippedMonth is a forecast month left out of the payload: a negative
// horizon, or a horizon already sent for the same detail.
type SkippedMonth struct {
	ForecastDetailID string
	ForecastMonth    int
	HMSIAllocation   int64
}

// BuildPayload converts forecast details into payload entries, one slot per
// distinct non-negative forecast month. A repeated month keeps its first
// value; every month left out is reported in skipped.
func BuildPayload(details []PayloadDetail) (entries []PayloadEntry, skipped []SkippedMonth) {
	entries = make([]PayloadEntry, 0, len(details))
	for _, d := range details {
		seen := make(map[int]bool, len(d.Months))
		allocations := make([]HorizonAllocation, 0, len(d.Months))
		for _, m := range d.Months {
			if m.ForecastMonth < 0 || seen[m.ForecastMonth] {
				skipped = append(skipped, SkippedMonth{
					ForecastDetailID: d.ForecastDetailID,
					ForecastMonth:    m.ForecastMonth,
					HMSIAllocation:   m.HMSIAllocation,
				})
				continue
			}
			seen[m.ForecastMonth] = true
			allocations = append(allocations, HorizonAllocation{Horizon: m.ForecastMonth, Value: m.HMSIAllocation})
		}
		sort.Slice(allocations, func(i, j int) bool {
			return allocations[i].Horizon < allocations[j].Horizon
		})
		entries = append(entries, PayloadEntry{
			RecordID:         d.ForecastDetailID,
			DealerForecastID: d.ForecastID,
			ModelVariant:     d.ModelVariant,
			Allocations:      allocations,
		})
	}
	return entries, skipped
}

// FinalAllocation is the figure frozen on submit: the computed allocation
// corrected by the operator adjustment, never negative.
func FinalAllocation(r Result) int64 {
	v := r.Allocation + r.Adjustment
	if v < 0 {
		return 0
	}
	return v
}
