package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleRow() InputRow {
	return InputRow{
		DealerID:             "D1",
		ModelID:              "M1",
		CategoryID:           "C1",
		ForecastMonth:        0,
		WS:                   100,
		TakeOff:              1000,
		BO:                   100,
		StockPilotPercentage: 50,
		SOA:                  50,
		OC:                   20,
		BookingProspect:      10,
		ForecastPercentage:   80,
	}
}

func TestComputeWorkedExample(t *testing.T) {
	row := exampleRow()
	others := []InputRow{
		{DealerID: "D2", ModelID: "M1", CategoryID: "C1", WS: 100},
		{DealerID: "D3", ModelID: "M1", CategoryID: "C1", WS: 200},
	}

	results, totals := Compute(append([]InputRow{row}, others...))
	require.Len(t, results, 3)

	got := results[0]
	assert.Equal(t, int64(25), got.WSPercentage)
	assert.InDelta(t, 35936.0, got.UnfinishedAllocation, 1e-9)
	assert.Equal(t, int64(100), got.Allocation, "raw 8984 is capped at ws")
	assert.Equal(t, int64(8984), Allocate(got.UnfinishedAllocation, got.WSPercentage, 1<<40))

	assert.Equal(t, int64(100), totals.Get("D1", "C1"))
}

func TestComputeZeroGroupWholesale(t *testing.T) {
	rows := []InputRow{
		{DealerID: "D1", ModelID: "M1", ForecastMonth: 1, WS: 0, TakeOff: 500, StockPilotPercentage: 10, ForecastPercentage: 50},
		{DealerID: "D2", ModelID: "M1", ForecastMonth: 1, WS: 0},
	}
	results, _ := Compute(rows)
	for _, r := range results {
		assert.Equal(t, int64(0), r.WSPercentage)
		assert.Equal(t, int64(0), r.Allocation)
	}
}

func TestComputeGroupsByModelAndMonth(t *testing.T) {
	rows := []InputRow{
		{DealerID: "D1", ModelID: "M1", ForecastMonth: 0, WS: 30},
		{DealerID: "D2", ModelID: "M1", ForecastMonth: 0, WS: 70},
		{DealerID: "D1", ModelID: "M1", ForecastMonth: 1, WS: 30},
		{DealerID: "D1", ModelID: "M2", ForecastMonth: 0, WS: 30},
	}
	results, _ := Compute(rows)
	assert.Equal(t, int64(30), results[0].WSPercentage)
	assert.Equal(t, int64(70), results[1].WSPercentage)
	assert.Equal(t, int64(100), results[2].WSPercentage)
	assert.Equal(t, int64(100), results[3].WSPercentage)
}

func TestWSPercentageTruncates(t *testing.T) {
	assert.Equal(t, int64(33), WSPercentage(1, 3))
	assert.Equal(t, int64(66), WSPercentage(2, 3))
	assert.Equal(t, int64(0), WSPercentage(5, 0))
}

func TestAllocationNeverExceedsWholesale(t *testing.T) {
	cases := []InputRow{
		exampleRow(),
		{ModelID: "M", WS: 1, TakeOff: 1_000_000, StockPilotPercentage: 100, ForecastPercentage: 100},
		{ModelID: "M", WS: 0, TakeOff: 10, StockPilotPercentage: 100, ForecastPercentage: 100},
		{ModelID: "M", WS: 7, TakeOff: 0, SOA: 100, StockPilotPercentage: 10, ForecastPercentage: 100},
	}
	for _, c := range cases {
		results, _ := Compute([]InputRow{c})
		assert.LessOrEqual(t, results[0].Allocation, c.WS)
	}
}

func TestUnfinishedAllocationMissingComponents(t *testing.T) {
	assert.Equal(t, 0.0, UnfinishedAllocation(InputRow{}))
	assert.Equal(t, 0.0, UnfinishedAllocation(InputRow{TakeOff: 100, StockPilotPercentage: 10}))
}

func TestNegativeUnfinishedFloors(t *testing.T) {
	row := InputRow{ModelID: "M", WS: 10, SOA: 3, ForecastPercentage: 100}
	results, _ := Compute([]InputRow{row})
	assert.Equal(t, -3.0, results[0].UnfinishedAllocation)
	assert.Equal(t, int64(-3), results[0].Allocation)
}

func TestTotalsAccumulatePerDealerCategory(t *testing.T) {
	rows := []InputRow{
		{DealerID: "D1", ModelID: "M1", CategoryID: "C1", WS: 10, TakeOff: 100, StockPilotPercentage: 1, ForecastPercentage: 100},
		{DealerID: "D1", ModelID: "M2", CategoryID: "C1", WS: 10, TakeOff: 100, StockPilotPercentage: 1, ForecastPercentage: 100},
		{DealerID: "D1", ModelID: "M3", CategoryID: "C2", WS: 4, TakeOff: 100, StockPilotPercentage: 1, ForecastPercentage: 100},
	}
	_, totals := Compute(rows)
	assert.Equal(t, int64(20), totals.Get("D1", "C1"))
	assert.Equal(t, int64(4), totals.Get("D1", "C2"))
	assert.Equal(t, int64(0), totals.Get("D9", "C1"))
}
