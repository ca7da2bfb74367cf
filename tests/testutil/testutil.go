// Package testutil provides common test utilities for the stock engine.
// It contains helpers for mock databases, gin test contexts and eventual
// assertions.
package testutil

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a postgres-dialect GORM handle over sqlmock. The
// connection is closed on test cleanup.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() {
		_ = mockDB.Close()
	})

	return &MockDB{
		DB:    gormDB,
		Mock:  mock,
		SqlDB: mockDB,
	}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// TestContext wraps a Gin test context with HTTP recorder.
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
	Engine   *gin.Engine
}

// NewTestContext creates a Gin test context for method and path
func NewTestContext(t *testing.T, method, path string) *TestContext {
	t.Helper()

	w := httptest.NewRecorder()
	c, engine := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)

	return &TestContext{
		Context:  c,
		Recorder: w,
		Engine:   engine,
	}
}

// SetRequestID sets a request ID in the context.
func (tc *TestContext) SetRequestID(id string) {
	tc.Context.Set(middleware.RequestIDKey, id)
}

// SetActor places an authenticated actor in the context the way the JWT
// middleware does
func (tc *TestContext) SetActor(actor identity.Actor) {
	tc.Context.Set(middleware.ActorKey, actor)
	tc.Context.Set(middleware.JWTUserIDKey, actor.ID)
}

// ResponseBody returns the recorded body
func (tc *TestContext) ResponseBody() []byte {
	return tc.Recorder.Body.Bytes()
}

// ResponseCode returns the recorded status
func (tc *TestContext) ResponseCode() int {
	return tc.Recorder.Code
}

// Manager returns an actor holding every stock capability
func Manager() identity.Actor {
	return identity.NewActor("user-manager", "manager",
		string(identity.CapabilityStockManage),
		string(identity.CapabilityQCInspect),
		string(identity.CapabilityQCRelease),
	)
}

// ContextWithTimeout returns a context cancelled on test cleanup
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx, cancel
}

// AssertEventually asserts that condition becomes true within timeout.
func AssertEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Eventually(t, condition, timeout, interval, msgAndArgs...)
}

// RequireEventually is AssertEventually that stops the test on failure.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, condition, timeout, interval, msgAndArgs...)
}

// HTTPRequest builds a request with an optional bearer token
func HTTPRequest(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, ToJSONReader(t, body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(middleware.AuthHeaderKey, "Bearer "+token)
	}
	return req
}
