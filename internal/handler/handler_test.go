package handler

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"crm-service/internal/model"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB points the global database at a fresh in-memory sqlite
// instance and migrates the models.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory DB
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Customer{},
		&model.Deal{},
		&model.Invoice{},
		&model.InvoiceItem{},
	))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		sqlDB.Close()
	})

	return db
}

func setupTestJWT(t *testing.T) *jwtutil.JWTUtil {
	t.Helper()
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      "test-signing-key",
		ExpirationHours: 1,
	})
	Initialize(jwtUtil)
	return jwtUtil
}

// createTestUser seeds an account with a bcrypt-hashed password.
func createTestUser(t *testing.T, db *gorm.DB, email, password string) model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := model.User{Email: email, Password: string(hashed), Name: "Test User"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// newJSONContext builds an echo context carrying a JSON body.
func newJSONContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// newAuthedContext builds a context the way the auth middleware leaves
// it: with the session subject already resolved.
func newAuthedContext(t *testing.T, userID uint, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	c, rec := newJSONContext(t, method, target, body)
	c.Set("user_id", userID)
	c.Set("email", fmt.Sprintf("user%d@example.com", userID))
	return c, rec
}

func setPathID(c echo.Context, path string, id uint) {
	c.SetPath(path)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprintf("%d", id))
}

func requireJSONStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "unexpected status, body: %s", rec.Body.String())
	require.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}
