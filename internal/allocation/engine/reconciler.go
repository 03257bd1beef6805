package engine

// TargetRow is one monthly target line with the realized figures of the
// dealer's forecast for the same category and horizon.
type TargetRow struct {
	DealerID           string
	CategoryID         string
	ForecastMonth      int
	Target             int64
	RealizedPriorAlloc int64
	RealizedWS         int64
}

type TargetMonth struct {
	Month          int   `json:"month"`
	Target         int64 `json:"target"`
	Percentage     int64 `json:"percentage"`
	AllocPrevMonth int64 `json:"alloc_prev_month"`
	WS             int64 `json:"ws"`
	TotalAlloc     int64 `json:"total_alloc"`
	VsTarget       int64 `json:"vs_target"`
	VsForecast     int64 `json:"vs_forecast"`
}

type TargetCategory struct {
	CategoryID string
	Months     []TargetMonth
}

type DealerTargets struct {
	DealerID   string
	Categories []TargetCategory
}

// Reconcile compares realized allocation against the monthly targets.
// Output follows the first appearance of each dealer and category in rows.
//
// vs_target and vs_forecast divide by value*100. For realistic magnitudes this
// is almost always zero; the scale is kept as the business defined it.
func Reconcile(rows []TargetRow, totals Totals) []DealerTargets {
	categorySum := make(map[string]int64)
	for _, r := range rows {
		categorySum[r.CategoryID] += r.Target
	}

	var out []DealerTargets
	dealerIdx := make(map[string]int)
	categoryIdx := make(map[string]map[string]int)

	for _, r := range rows {
		di, ok := dealerIdx[r.DealerID]
		if !ok {
			di = len(out)
			dealerIdx[r.DealerID] = di
			categoryIdx[r.DealerID] = make(map[string]int)
			out = append(out, DealerTargets{DealerID: r.DealerID})
		}
		dealer := &out[di]

		ci, ok := categoryIdx[r.DealerID][r.CategoryID]
		if !ok {
			ci = len(dealer.Categories)
			categoryIdx[r.DealerID][r.CategoryID] = ci
			dealer.Categories = append(dealer.Categories, TargetCategory{CategoryID: r.CategoryID})
		}

		totalAlloc := totals.Get(r.DealerID, r.CategoryID)
		dealer.Categories[ci].Months = append(dealer.Categories[ci].Months, TargetMonth{
			Month:          r.ForecastMonth,
			Target:         r.Target,
			Percentage:     share(r.Target, categorySum[r.CategoryID]),
			AllocPrevMonth: r.RealizedPriorAlloc,
			WS:             r.RealizedWS,
			TotalAlloc:     totalAlloc,
			VsTarget:       scaledRatio(totalAlloc, r.Target),
			VsForecast:     scaledRatio(totalAlloc, r.RealizedWS),
		})
	}
	return out
}

func share(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return part * 100 / whole
}

func scaledRatio(total, base int64) int64 {
	if base <= 0 {
		return 0
	}
	return total / (base * 100)
}
