package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetSheet(t *testing.T) {
	rows := [][]string{
		{"DEALER_ID", "DEALER_NAME", "CATEGORY_ID", "FORECAST_MONTH", "TARGET"},
		{"D1", "Dealer One", "C1", "0", "200"},
		{},
		{" D1 ", "", "C1", "1", "150"},
	}
	lines, err := parseTargetSheet(rows)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, targetLine{Row: 2, DealerID: "D1", CategoryID: "C1", ForecastMonth: 0, Target: 200}, lines[0])
	assert.Equal(t, 4, lines[1].Row)
	assert.Equal(t, "D1", lines[1].DealerID)
}

func TestParseTargetSheetColumnsByName(t *testing.T) {
	rows := [][]string{
		{"target", "forecast_month", "category_id", "dealer_id"},
		{"75", "4", "C2", "D3"},
	}
	lines, err := parseTargetSheet(rows)
	require.NoError(t, err)
	assert.Equal(t, targetLine{Row: 2, DealerID: "D3", CategoryID: "C2", ForecastMonth: 4, Target: 75}, lines[0])
}

func TestParseTargetSheetRejectsInvalidRows(t *testing.T) {
	rows := [][]string{
		{"DEALER_ID", "CATEGORY_ID", "FORECAST_MONTH", "TARGET"},
		{"D1", "C1", "0", "10"},
		{"D1", "C1", "5", "10"},
		{"D1", "C1", "1", "-1"},
		{"", "C1", "1", "10"},
		{"D1", "C1", "0", "12"},
		{"D1", "C1", "2", "ten"},
	}
	_, err := parseTargetSheet(rows)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "invalid rows: 3, 4, 5, 6, 7", vErr.Message)
}

func TestParseTargetSheetStructure(t *testing.T) {
	_, err := parseTargetSheet(nil)
	assert.EqualError(t, err, "workbook is empty")

	_, err = parseTargetSheet([][]string{{"DEALER_ID", "CATEGORY_ID", "TARGET"}})
	assert.EqualError(t, err, "missing column FORECAST_MONTH")

	_, err = parseTargetSheet([][]string{{"DEALER_ID", "CATEGORY_ID", "FORECAST_MONTH", "TARGET"}})
	assert.EqualError(t, err, "workbook has no target rows")
}

func TestUpsertMonthlyTargetRejectsNonWorkbook(t *testing.T) {
	svc := NewTargetService(nil, nil, nil, nil)
	ctx := context.Background()
	actor := Actor{UserID: "u-1"}

	_, err := svc.UpsertMonthlyTarget(ctx, actor, 5, 2024, "targets.csv", []byte("D1,C1,0,10"))
	assert.EqualError(t, err, "only .xlsx files are accepted")

	_, err = svc.UpsertMonthlyTarget(ctx, actor, 5, 2024, "targets.xlsx", []byte("not a zip"))
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = svc.UpsertMonthlyTarget(ctx, actor, 0, 2024, "targets.xlsx", nil)
	assert.True(t, errors.As(err, &vErr))
}

func TestJoinRowsSorts(t *testing.T) {
	assert.Equal(t, "2, 7, 10", joinRows([]int{10, 2, 7}))
}
