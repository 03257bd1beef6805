package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/engine"
	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/allocation/repository"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// XLSXContentType is the media type of uploaded and generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const targetSheet = "Monthly Target"

var targetHeaders = []string{"DEALER_ID", "DEALER_NAME", "CATEGORY_ID", "FORECAST_MONTH", "TARGET"}

// targetLine is one parsed workbook row. Row is the 1-based sheet row.
type targetLine struct {
	Row           int
	DealerID      string
	CategoryID    string
	ForecastMonth int
	Target        int64
}

type UploadTargetResult struct {
	MonthlyTargetID string `json:"monthly_target_id"`
	Month           int    `json:"month"`
	Year            int    `json:"year"`
	Rows            int    `json:"rows"`
	ArchiveKey      string `json:"archive_key,omitempty"`
}

// TargetService imports and exports the monthly dealer targets.
type TargetService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	archiver Archiver
	logger   *zap.Logger
}

func NewTargetService(db *gorm.DB, repos *repository.Repositories, archiver Archiver, logger *zap.Logger) *TargetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetService{db: db, repos: repos, archiver: archiver, logger: logger.Named("target")}
}

// UpsertMonthlyTarget replaces the targets of the cycle with the rows of an
// xlsx workbook. Any invalid row rejects the whole upload.
func (s *TargetService) UpsertMonthlyTarget(ctx context.Context, actor Actor, month, year int, filename string, content []byte) (*UploadTargetResult, error) {
	if err := validateCycle(month, year); err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return nil, validationf("only .xlsx files are accepted")
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, validationf("file is not a readable xlsx workbook")
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, validationf("read workbook: %v", err)
	}
	lines, err := parseTargetSheet(rows)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, lines); err != nil {
		return nil, err
	}

	result := &UploadTargetResult{Month: month, Year: year, Rows: len(lines)}
	err = repository.RunInUnitOfWork(ctx, s.db, func(uow *repository.UnitOfWork) error {
		repos := s.repos.WithUnitOfWork(uow)
		target, err := repos.Target.FindOrCreate(ctx, month, year, actor.UserID)
		if err != nil {
			return err
		}
		result.MonthlyTargetID = target.ID

		now := time.Now()
		details := make([]entity.MonthlyTargetDetail, 0, len(lines))
		for _, l := range lines {
			details = append(details, entity.MonthlyTargetDetail{
				ID:              uuid.New().String(),
				MonthlyTargetID: target.ID,
				DealerID:        l.DealerID,
				CategoryID:      l.CategoryID,
				ForecastMonth:   l.ForecastMonth,
				Target:          l.Target,
				CreatedBy:       actor.UserID,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		return repos.Target.ReplaceDetails(ctx, target.ID, details, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	if s.archiver != nil {
		key := fmt.Sprintf("targets/%s/%s_%s", periodLabel(month, year), time.Now().Format("20060102150405"), filepath.Base(filename))
		name, err := s.archiver.Put(ctx, key, content, XLSXContentType)
		if err != nil {
			s.logger.Warn("archive monthly target upload", zap.String("key", key), zap.Error(err))
		} else {
			result.ArchiveKey = name
		}
	}

	s.logger.Info("monthly target uploaded",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("rows", len(lines)),
		zap.String("user_id", actor.UserID),
	)
	return result, nil
}

// checkReferences rejects rows naming unknown dealers or categories.
func (s *TargetService) checkReferences(ctx context.Context, lines []targetLine) error {
	dealers, err := s.repos.Target.ListDealers(ctx)
	if err != nil {
		return err
	}
	categories, err := s.repos.Target.ListCategories(ctx)
	if err != nil {
		return err
	}
	knownDealers := make(map[string]bool, len(dealers))
	for _, d := range dealers {
		knownDealers[d.ID] = true
	}
	knownCategories := make(map[string]bool, len(categories))
	for _, c := range categories {
		knownCategories[c.ID] = true
	}

	var bad []int
	for _, l := range lines {
		if !knownDealers[l.DealerID] || !knownCategories[l.CategoryID] {
			bad = append(bad, l.Row)
		}
	}
	if len(bad) > 0 {
		return validationf("unknown dealer or category on rows %s", joinRows(bad))
	}
	return nil
}

// GenerateTemplate builds a workbook with one row per dealer, category and
// horizon, prefilled with the targets currently stored for the cycle.
func (s *TargetService) GenerateTemplate(ctx context.Context, month, year int) (*excelize.File, string, error) {
	if err := validateCycle(month, year); err != nil {
		return nil, "", err
	}
	dealers, err := s.repos.Target.ListDealers(ctx)
	if err != nil {
		return nil, "", err
	}
	categories, err := s.repos.Target.ListCategories(ctx)
	if err != nil {
		return nil, "", err
	}
	details, err := s.repos.Target.ListDetails(ctx, month, year)
	if err != nil {
		return nil, "", err
	}

	current := make(map[string]int64, len(details))
	for _, d := range details {
		current[targetKey(d.DealerID, d.CategoryID, d.ForecastMonth)] = d.Target
	}

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", targetSheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	for i, h := range targetHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(targetSheet, col+"1", h)
		f.SetCellStyle(targetSheet, col+"1", col+"1", headerStyle)
	}

	row := 2
	for _, d := range dealers {
		for _, c := range categories {
			for m := 0; m < engine.HorizonCount; m++ {
				values := []interface{}{d.ID, d.Name, c.ID, m, current[targetKey(d.ID, c.ID, m)]}
				if err := f.SetSheetRow(targetSheet, fmt.Sprintf("A%d", row), &values); err != nil {
					f.Close()
					return nil, "", fmt.Errorf("write template row %d: %w", row, err)
				}
				row++
			}
		}
	}

	for i, w := range []float64{14, 32, 14, 16, 12} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(targetSheet, col, col, w)
	}

	filename := fmt.Sprintf("Monthly_Target_%s.xlsx", periodLabel(month, year))
	return f, filename, nil
}

// parseTargetSheet reads the target rows below the header. Columns are
// located by header name; DEALER_NAME is informational and ignored.
func parseTargetSheet(rows [][]string) ([]targetLine, error) {
	if len(rows) == 0 {
		return nil, validationf("workbook is empty")
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"DEALER_ID", "CATEGORY_ID", "FORECAST_MONTH", "TARGET"} {
		if _, ok := col[required]; !ok {
			return nil, validationf("missing column %s", required)
		}
	}

	cell := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		lines []targetLine
		bad   []int
	)
	seen := make(map[string]bool)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlankRow(row) {
			continue
		}
		dealerID := cell(row, "DEALER_ID")
		categoryID := cell(row, "CATEGORY_ID")
		month, monthErr := strconv.Atoi(cell(row, "FORECAST_MONTH"))
		target, targetErr := strconv.ParseInt(cell(row, "TARGET"), 10, 64)

		key := targetKey(dealerID, categoryID, month)
		if dealerID == "" || categoryID == "" ||
			monthErr != nil || month < 0 || month >= engine.HorizonCount ||
			targetErr != nil || target < 0 || seen[key] {
			bad = append(bad, rowNum)
			continue
		}
		seen[key] = true
		lines = append(lines, targetLine{
			Row:           rowNum,
			DealerID:      dealerID,
			CategoryID:    categoryID,
			ForecastMonth: month,
			Target:        target,
		})
	}

	if len(bad) > 0 {
		return nil, validationf("invalid rows: %s", joinRows(bad))
	}
	if len(lines) == 0 {
		return nil, validationf("workbook has no target rows")
	}
	return lines, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func targetKey(dealerID, categoryID string, month int) string {
	return dealerID + "|" + categoryID + "|" + strconv.Itoa(month)
}

func joinRows(rows []int) string {
	sort.Ints(rows)
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}
