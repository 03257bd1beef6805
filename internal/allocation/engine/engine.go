// Package engine holds the pure allocation arithmetic: per-row allocation,
// target reconciliation and the outbound payload shape. Nothing here touches
// the database, so every rule can be exercised with plain values.
package engine

import "math"

// InputRow is one (dealer, model, forecast_month) line of a cycle, already
// joined and coalesced by the repository. Missing joins arrive as zeros.
type InputRow struct {
	DealerID              string
	DealerName            string
	ForecastID            string
	ForecastDetailID      string
	ForecastDetailMonthID string
	ModelID               string
	ModelVariant          string
	SegmentID             string
	CategoryID            string
	ForecastMonth         int

	WS              int64
	Adjustment      int64
	TakeOff         int64
	BO              int64
	SOA             int64
	OC              int64
	BookingProspect int64

	StockPilotPercentage float64
	ForecastPercentage   float64

	ConfirmedTotalWS int64
	EndStock         int64
}

// Result is an InputRow with its computed share and allocation.
type Result struct {
	InputRow
	WSPercentage         int64
	UnfinishedAllocation float64
	Allocation           int64
}

// Totals accumulates allocation per dealer and category.
type Totals map[string]map[string]int64

// Add accumulates n for the dealer and category.
func (t Totals) Add(dealerID, categoryID string, n int64) {
	byCategory, ok := t[dealerID]
	if !ok {
		byCategory = make(map[string]int64)
		t[dealerID] = byCategory
	}
	byCategory[categoryID] += n
}

// Get returns the accumulated allocation, zero when absent.
func (t Totals) Get(dealerID, categoryID string) int64 {
	return t[dealerID][categoryID]
}

type groupKey struct {
	modelID       string
	forecastMonth int
}

// Compute runs the allocation over every row of a cycle. Rows keep their
// input order. The first pass sums wholesale per (model, forecast_month), the
// second derives the share and the clamped allocation.
func Compute(rows []InputRow) ([]Result, Totals) {
	wsSum := make(map[groupKey]int64, len(rows))
	for _, r := range rows {
		wsSum[groupKey{r.ModelID, r.ForecastMonth}] += r.WS
	}

	results := make([]Result, 0, len(rows))
	totals := make(Totals)
	for _, r := range rows {
		res := Result{InputRow: r}
		res.WSPercentage = WSPercentage(r.WS, wsSum[groupKey{r.ModelID, r.ForecastMonth}])
		res.UnfinishedAllocation = UnfinishedAllocation(r)
		res.Allocation = Allocate(res.UnfinishedAllocation, res.WSPercentage, r.WS)
		totals.Add(r.DealerID, r.CategoryID, res.Allocation)
		results = append(results, res)
	}
	return results, totals
}

// WSPercentage is the dealer's truncated share of the group wholesale.
func WSPercentage(ws, wsSum int64) int64 {
	if wsSum <= 0 {
		return 0
	}
	return ws * 100 / wsSum
}

// UnfinishedAllocation is the stock left for forecast orders:
// ((take_off - bo) * stock_pilot - (soa + oc + booking)) * forecast_pct / 100.
func UnfinishedAllocation(r InputRow) float64 {
	available := float64(r.TakeOff-r.BO) * r.StockPilotPercentage
	committed := float64(r.SOA + r.OC + r.BookingProspect)
	return (available - committed) * r.ForecastPercentage / 100
}

// Allocate applies the share to the unfinished stock and caps the result at
// the dealer's own wholesale.
func Allocate(unfinished float64, wsPercentage, ws int64) int64 {
	allocation := int64(math.Floor(unfinished * float64(wsPercentage) / 100))
	if allocation > ws {
		allocation = ws
	}
	return allocation
}
