package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/erp/stockengine/internal/infrastructure/report"
	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	managerActor = identity.NewActor("u-manager", "manager", "stock:manage", "qc:inspect", "qc:release")
	clerkActor   = identity.NewActor("u-clerk", "clerk")
)

type stockAPI struct {
	router    *gin.Engine
	svc       *appinv.Service
	warehouse *inventory.Warehouse
	actor     identity.Actor
}

func newStockAPI(t *testing.T) *stockAPI {
	t.Helper()

	dsn := "file:handler_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	cfg := appinv.DefaultConfig()
	cfg.Retry.Backoff = time.Millisecond
	repos := persistence.NewRepositories(db)
	svc := appinv.NewService(repos, persistence.NewGormTransactionScope(db), lock.NewMemoryLocker(time.Second), cfg, zap.NewNop())
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) })

	wh, err := inventory.NewWarehouse("main", "Main")
	require.NoError(t, err)
	wh.IsDefault = true
	require.NoError(t, repos.Warehouses.Save(context.Background(), wh))

	api := &stockAPI{svc: svc, warehouse: wh, actor: managerActor}
	api.router = gin.New()
	api.router.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set(middleware.ActorKey, api.actor)
		c.Next()
	})

	h := NewStockHandler(svc)
	g := api.router.Group("/stock")
	g.POST("/reservations", h.ReserveStock)
	g.POST("/reservations/release", h.ReleaseReservedStock)
	g.POST("/fulfillments", h.DeductStockOnFulfillment)
	g.GET("/items/:item_id", h.GetStock)
	g.PUT("/items/:item_id", h.UpdateStock)
	g.PUT("/items/:item_id/threshold", h.SetLowStockThreshold)
	g.POST("/items/:item_id/reconcile", h.Reconcile)
	g.GET("/items/:item_id/availability", h.CheckAvailability)
	g.GET("/items/:item_id/batches", h.ListBatches)
	g.GET("/items/:item_id/history", h.ListHistory)
	g.GET("/items/:item_id/wastage", h.ListWastage)
	g.POST("/batches", h.ReceiveBatch)
	g.POST("/batches/:batch_id/inspect", h.InspectBatch)
	g.POST("/batches/:batch_id/quarantine", h.QuarantineBatch)
	g.POST("/batches/:batch_id/release", h.ReleaseBatch)
	g.POST("/wastage", h.RecordWastage)
	g.POST("/transfers", h.TransferStock)
	g.GET("/reports/expiry", h.ExpiryReport)
	g.GET("/reports/expiry/export", h.ExportExpiryReport)
	return api
}

func (a *stockAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// decodeData re-decodes the envelope data into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	resp := decodeResponse(t, w)
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
	return resp
}

type batchResponse struct {
	ID        uuid.UUID       `json:"id"`
	QCStatus  string          `json:"qc_status"`
	Remaining decimal.Decimal `json:"remaining_quantity"`
}

func (a *stockAPI) receive(t *testing.T, itemID uuid.UUID, qty float64, expiry string) batchResponse {
	t.Helper()
	w := a.do(http.MethodPost, "/stock/batches", gin.H{
		"item_id":     itemID.String(),
		"quantity":    qty,
		"unit_cost":   2.5,
		"expiry_date": expiry,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b batchResponse
	decodeData(t, w, &b)
	return b
}

func (a *stockAPI) release(t *testing.T, batchID uuid.UUID) {
	t.Helper()
	w := a.do(http.MethodPost, "/stock/batches/"+batchID.String()+"/inspect", gin.H{"result": "pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(http.MethodPost, "/stock/batches/"+batchID.String()+"/release", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStockHandler_ReceiveBatch(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()

	b := api.receive(t, itemID, 10, "2026-06-30")
	assert.Equal(t, string(inventory.QCStatusPending), b.QCStatus)
	assert.True(t, b.Remaining.Equal(decimal.NewFromInt(10)))

	t.Run("requires stock.manage", func(t *testing.T) {
		api.actor = clerkActor
		defer func() { api.actor = managerActor }()

		w := api.do(http.MethodPost, "/stock/batches", gin.H{"item_id": itemID.String(), "quantity": 1, "unit_cost": 1})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, shared.CodeUnauthorized, decodeResponse(t, w).Error.Code)
	})

	t.Run("rejects a malformed expiry date", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/batches", gin.H{"item_id": itemID.String(), "quantity": 1, "unit_cost": 1, "expiry_date": "30/06/2026"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeInvalidExpiry, decodeResponse(t, w).Error.Code)
	})

	t.Run("rejects a non-positive quantity", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/batches", gin.H{"item_id": itemID.String(), "quantity": 0, "unit_cost": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeInvalidQuantity, decodeResponse(t, w).Error.Code)
	})

	t.Run("rejects a missing item", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/batches", gin.H{"quantity": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}

func TestStockHandler_GetStock(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()

	w := api.do(http.MethodGet, "/stock/items/"+itemID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/stock/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeInvalidItem, decodeResponse(t, w).Error.Code)

	api.receive(t, itemID, 8, "")

	var view appinv.StockView
	w = api.do(http.MethodGet, "/stock/items/"+itemID.String()+"?warehouse_id="+api.warehouse.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &view)
	assert.True(t, view.AvailableQuantity.Equal(decimal.NewFromInt(8)))

	w = api.do(http.MethodGet, "/stock/items/"+itemID.String()+"/availability?quantity=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail AvailabilityResponse
	decodeData(t, w, &avail)
	assert.True(t, avail.Available)

	w = api.do(http.MethodGet, "/stock/items/"+itemID.String()+"/availability?quantity=9", nil)
	decodeData(t, w, &avail)
	assert.False(t, avail.Available)

	w = api.do(http.MethodGet, "/stock/items/"+itemID.String()+"/availability?quantity=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStockHandler_ReservationLifecycle(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()
	b := api.receive(t, itemID, 10, "2026-05-01")
	api.release(t, b.ID)

	lines := func(qty float64) gin.H {
		return gin.H{"order_id": "SO-1", "items": []gin.H{{"item_id": itemID.String(), "quantity": qty}}}
	}

	t.Run("shortfall answers 422 with failures", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/reservations", lines(11))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var result appinv.ReservationResult
		resp := decodeData(t, w, &result)
		assert.Equal(t, shared.CodeInsufficientAvailableStock, resp.Error.Code)
		assert.False(t, result.OK)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, itemID, result.Failures[0].ItemID)
	})

	t.Run("reserve", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/reservations", lines(6))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result appinv.ReservationResult
		decodeData(t, w, &result)
		assert.True(t, result.OK)
		assert.Equal(t, api.warehouse.ID, result.WarehouseID)
	})

	t.Run("release part", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/reservations/release", lines(2))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result ReleaseResponse
		decodeData(t, w, &result)
		require.Len(t, result.Items, 1)
		assert.True(t, result.Items[0].Released.Equal(decimal.NewFromInt(2)))
		assert.Empty(t, result.Items[0].ErrorCode)
	})

	t.Run("fulfil consumes released batches", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/fulfillments", lines(4))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result appinv.FulfillmentResult
		decodeData(t, w, &result)
		require.Len(t, result.Items, 1)
		require.Len(t, result.Items[0].Batches, 1)
		assert.Equal(t, b.ID, result.Items[0].Batches[0].BatchID)

		view, err := api.svc.GetStock(context.Background(), itemID, &api.warehouse.ID)
		require.NoError(t, err)
		assert.True(t, view.AvailableQuantity.Equal(decimal.NewFromInt(6)))
		assert.True(t, view.ReservedQuantity.IsZero())
	})

	t.Run("empty items fail validation", func(t *testing.T) {
		w := api.do(http.MethodPost, "/stock/reservations", gin.H{"order_id": "SO-2", "items": []gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}

func TestStockHandler_FulfilUnreleasedStock(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()
	api.receive(t, itemID, 5, "")

	w := api.do(http.MethodPost, "/stock/fulfillments", gin.H{
		"order_id": "SO-9",
		"items":    []gin.H{{"item_id": itemID.String(), "quantity": 1}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeInsufficientReleasedStock, decodeResponse(t, w).Error.Code)
}

func TestStockHandler_QCTransitions(t *testing.T) {
	api := newStockAPI(t)
	b := api.receive(t, uuid.New(), 3, "")

	w := api.do(http.MethodPost, "/stock/batches/"+b.ID.String()+"/release", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeInvalidTransition, decodeResponse(t, w).Error.Code)

	w = api.do(http.MethodPost, "/stock/batches/"+b.ID.String()+"/quarantine", gin.H{"notes": "dented"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got batchResponse
	decodeData(t, w, &got)
	assert.Equal(t, string(inventory.QCStatusQuarantined), got.QCStatus)

	w = api.do(http.MethodPost, "/stock/batches/"+b.ID.String()+"/inspect", gin.H{"result": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/stock/batches/"+uuid.NewString()+"/inspect", gin.H{"result": "pass"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStockHandler_UpdateAndThreshold(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()
	api.receive(t, itemID, 10, "")
	path := "/stock/items/" + itemID.String()

	w := api.do(http.MethodPut, path, gin.H{"quantity": 7, "reason": "cycle count"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view appinv.StockView
	decodeData(t, w, &view)
	assert.True(t, view.AvailableQuantity.Equal(decimal.NewFromInt(7)))

	w = api.do(http.MethodPut, path+"/threshold", gin.H{"threshold": 8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &view)
	assert.True(t, view.IsLowStock)

	w = api.do(http.MethodPost, path+"/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec appinv.ReconcileReport
	decodeData(t, w, &rec)
	assert.False(t, rec.Drift)

	w = api.do(http.MethodGet, path+"/history?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.PageSize)
	assert.GreaterOrEqual(t, resp.Meta.Total, int64(2))

	w = api.do(http.MethodGet, path+"/history?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStockHandler_RecordWastage(t *testing.T) {
	api := newStockAPI(t)
	itemID := uuid.New()
	api.receive(t, itemID, 10, "")

	w := api.do(http.MethodPost, "/stock/wastage", gin.H{"item_id": itemID.String(), "quantity": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeMissingReason, decodeResponse(t, w).Error.Code)

	w = api.do(http.MethodPost, "/stock/wastage", gin.H{"item_id": itemID.String(), "quantity": 2, "reason": "spoiled"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view appinv.WastageView
	decodeData(t, w, &view)
	assert.Equal(t, "manager", view.ReportedBy)

	w = api.do(http.MethodGet, "/stock/items/"+itemID.String()+"/wastage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page []appinv.WastageView
	resp := decodeData(t, w, &page)
	assert.Len(t, page, 1)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestStockHandler_TransferValidation(t *testing.T) {
	api := newStockAPI(t)
	id := uuid.NewString()

	w := api.do(http.MethodPost, "/stock/transfers", gin.H{
		"item_id":           uuid.NewString(),
		"from_warehouse_id": id,
		"to_warehouse_id":   id,
		"quantity":          1,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
}

func TestStockHandler_ExpiryReport(t *testing.T) {
	api := newStockAPI(t)
	api.receive(t, uuid.New(), 4, "2026-03-01")

	w := api.do(http.MethodGet, "/stock/reports/expiry?today=2026-03-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view appinv.ExpiryReportView
	decodeData(t, w, &view)
	assert.Equal(t, "2026-03-01", view.Today)
	assert.Len(t, view.Items, 1)

	t.Run("export without renderer", func(t *testing.T) {
		w := api.do(http.MethodGet, "/stock/reports/expiry/export", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("export workbook", func(t *testing.T) {
		api.svc.SetReportRenderer(report.NewExpiryWorkbook())

		w := api.do(http.MethodGet, "/stock/reports/expiry/export?today=2026-03-01", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, report.XLSXContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "expiry-report-2026-03-01.xlsx")
		assert.NotEmpty(t, w.Body.Bytes())
	})
}
