package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/abascode/his-backend-abas/internal/allocation/entity"
	"github.com/abascode/his-backend-abas/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_allocation"
	JWTSecret  = "allocation-test-jwt-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the directory holding go.mod.
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// RequireDBEnv turns an unreachable test database into a failure instead of
// a skip. CI sets it so database-backed tests cannot pass without running.
const RequireDBEnv = "ALLOCATION_DB_TESTS"

func databaseUnavailable(t *testing.T, err error) {
	t.Helper()
	if os.Getenv(RequireDBEnv) != "" {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Skipf("database unavailable (set %s=1 to fail instead): %v", RequireDBEnv, err)
}

// SetupTestDB opens a postgres connection on a fresh schema dropped after the
// test. Without a reachable database the test is skipped, or fails when
// RequireDBEnv is set.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "127.0.0.1"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "his_allocation"),
	)
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		databaseUnavailable(t, err)
	}
	sqlSetup, _ := setupDB.DB()
	if err := sqlSetup.Ping(); err != nil {
		sqlSetup.Close()
		databaseUnavailable(t, err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup.Close()

	// search_path in the DSN so every pooled connection uses the schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
				sqlClean.Close()
			}
		}
	})
	return db
}

// SetupRouter creates a gin test router.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group behind JWT auth.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token for the user acting with roleID.
func GenerateTestToken(userID, name string, roleID int) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     userID,
		"uid":     userID,
		"name":    name,
		"role_id": roleID,
		"iss":     "his-backend",
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
		"jti":     fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken is a token for an ADMIN_SCMA operator.
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", entity.RoleAdminSCMA)
}

// DoRequest executes a JSON request against the test router.
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the response envelope into a map.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedMatrix stores the approval chain, roles in step order.
func SeedMatrix(t *testing.T, db *gorm.DB, roleIDs ...int) {
	t.Helper()
	for i, roleID := range roleIDs {
		if err := db.Create(&entity.ApprovalMatrix{RoleID: roleID, Order: i + 1}).Error; err != nil {
			t.Fatalf("Failed to seed approval matrix: %v", err)
		}
	}
}

// SeedCycleInputs stores one cycle with two dealers sharing model M1 in
// category C1, horizon 0 and 1, plus the masters the engine joins on.
// It returns the forecast detail month ids keyed "dealer/horizon".
func SeedCycleInputs(t *testing.T, db *gorm.DB, month, year int) map[string]string {
	t.Helper()
	now := time.Now()
	must := func(err error) {
		if err != nil {
			t.Fatalf("Failed to seed cycle inputs: %v", err)
		}
	}

	must(db.Create(&entity.Category{ID: "C1", Name: "Scooter"}).Error)
	must(db.Create(&entity.Segment{ID: "S1", Name: "Entry"}).Error)
	must(db.Create(&entity.Model{ID: "M1", Variant: "VARIO-125", CategoryID: "C1", SegmentID: "S1"}).Error)
	must(db.Create(&entity.StockPilot{ID: "sp-1", SegmentID: "S1", Month: month, Year: year, Percentage: decimal.NewFromInt(50)}).Error)
	must(db.Create(&entity.OrderConfiguration{ID: "oc-1", CategoryID: "C1", Month: month, Year: year, ForecastPercentage: decimal.NewFromInt(80)}).Error)
	must(db.Create(&entity.SlotCalculation{ID: "sc-1", Month: month, Year: year}).Error)

	ids := make(map[string]string)
	for _, dealer := range []struct {
		id string
		ws int64
	}{{"D1", 100}, {"D2", 300}} {
		must(db.Create(&entity.Dealer{ID: dealer.id, Name: "Dealer " + dealer.id}).Error)
		forecastID := "f-" + dealer.id
		detailID := "fd-" + dealer.id
		must(db.Create(&entity.Forecast{ID: forecastID, Month: month, Year: year, DealerID: dealer.id, CreatedAt: now, UpdatedAt: now}).Error)
		must(db.Create(&entity.ForecastDetail{ID: detailID, ForecastID: forecastID, ModelID: "M1", EndStock: 5, CreatedAt: now, UpdatedAt: now}).Error)
		for horizon := 0; horizon < 2; horizon++ {
			id := fmt.Sprintf("fdm-%s-%d", dealer.id, horizon)
			must(db.Create(&entity.ForecastDetailMonth{
				ID: id, ForecastDetailID: detailID, ForecastMonth: horizon,
				TotalWS: dealer.ws, CreatedAt: now, UpdatedAt: now,
			}).Error)
			ids[fmt.Sprintf("%s/%d", dealer.id, horizon)] = id
		}
	}

	for horizon := 0; horizon < 2; horizon++ {
		must(db.Create(&entity.SlotCalculationDetail{
			ID: fmt.Sprintf("scd-%d", horizon), SlotCalculationID: "sc-1", ModelID: "M1", ForecastMonth: horizon,
			TakeOff: 1000, BO: 100, SOA: 50, OC: 20, BookingProspect: 10,
		}).Error)
	}
	return ids
}
