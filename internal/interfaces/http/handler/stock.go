package handler

import (
	"fmt"
	"net/http"
	"strconv"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockHandler serves the stock reservation, batch and QC endpoints
type StockHandler struct {
	BaseHandler
	stock *appinv.Service
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stock *appinv.Service) *StockHandler {
	return &StockHandler{stock: stock}
}

// ===================== Request types =====================

// StockLineRequest is one item line of an order stock request
type StockLineRequest struct {
	ItemID   string  `json:"item_id" binding:"required,uuid"`
	Quantity float64 `json:"quantity"`
}

// OrderStockRequest is the body of reserve, release and fulfil calls
type OrderStockRequest struct {
	OrderID     string             `json:"order_id" binding:"max=100"`
	WarehouseID string             `json:"warehouse_id" binding:"omitempty,uuid"`
	Items       []StockLineRequest `json:"items" binding:"required,min=1,dive"`
}

// UpdateStockHTTPRequest sets an item's available quantity
type UpdateStockHTTPRequest struct {
	WarehouseID string  `json:"warehouse_id" binding:"omitempty,uuid"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit" binding:"max=20"`
	Reason      string  `json:"reason" binding:"max=500"`
	BatchID     string  `json:"batch_id" binding:"omitempty,uuid"`
}

// SetThresholdRequest sets the low-stock threshold of an item
type SetThresholdRequest struct {
	WarehouseID string  `json:"warehouse_id" binding:"omitempty,uuid"`
	Threshold   float64 `json:"threshold"`
}

// ReceiveBatchHTTPRequest books a stock receipt
type ReceiveBatchHTTPRequest struct {
	ItemID      string  `json:"item_id" binding:"required,uuid"`
	WarehouseID string  `json:"warehouse_id" binding:"omitempty,uuid"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	ExpiryDate  string  `json:"expiry_date"`
	BatchNumber string  `json:"batch_number" binding:"max=50"`
}

// InspectBatchRequest records a QC inspection
type InspectBatchRequest struct {
	Result string `json:"result" binding:"required,oneof=pass fail PASS FAIL"`
	Notes  string `json:"notes" binding:"max=500"`
}

// QuarantineBatchRequest places a batch on hold
type QuarantineBatchRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

// RecordWastageHTTPRequest writes off stock
type RecordWastageHTTPRequest struct {
	ItemID      string  `json:"item_id" binding:"required,uuid"`
	WarehouseID string  `json:"warehouse_id" binding:"omitempty,uuid"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit" binding:"max=20"`
	Reason      string  `json:"reason" binding:"max=500"`
	BatchID     string  `json:"batch_id" binding:"omitempty,uuid"`
}

// TransferStockHTTPRequest moves released stock between warehouses
type TransferStockHTTPRequest struct {
	ItemID          string  `json:"item_id" binding:"required,uuid"`
	FromWarehouseID string  `json:"from_warehouse_id" binding:"required,uuid"`
	ToWarehouseID   string  `json:"to_warehouse_id" binding:"required,uuid,nefield=FromWarehouseID"`
	Quantity        float64 `json:"quantity"`
}

// ===================== Response types =====================

// AvailabilityResponse answers an availability check
type AvailabilityResponse struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Available bool            `json:"available"`
}

// ReleaseLineResponse is one item of a release outcome
type ReleaseLineResponse struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Requested decimal.Decimal `json:"requested"`
	Released  decimal.Decimal `json:"released"`
	ErrorCode string          `json:"error_code,omitempty"`
}

// ReleaseResponse is the release outcome
type ReleaseResponse struct {
	OrderID     string                `json:"order_id,omitempty"`
	WarehouseID uuid.UUID             `json:"warehouse_id"`
	Items       []ReleaseLineResponse `json:"items"`
}

// ===================== Order stock =====================

func (h *StockHandler) bindOrderLines(c *gin.Context) (string, *uuid.UUID, []appinv.ItemQuantity, bool) {
	var req OrderStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return "", nil, nil, false
	}
	warehouseID, err := parseOptionalUUID("warehouse_id", req.WarehouseID)
	if err != nil {
		h.HandleError(c, err)
		return "", nil, nil, false
	}
	lines := make([]appinv.ItemQuantity, 0, len(req.Items))
	for _, line := range req.Items {
		qty, err := toQuantity(line.Quantity)
		if err != nil {
			h.HandleError(c, err)
			return "", nil, nil, false
		}
		lines = append(lines, appinv.ItemQuantity{ItemID: uuid.MustParse(line.ItemID), Quantity: qty})
	}
	return req.OrderID, warehouseID, lines, true
}

// ReserveStock reserves every line for one order, all or nothing.
// A shortfall answers 422 with the per-item failures in data.
func (h *StockHandler) ReserveStock(c *gin.Context) {
	orderID, warehouseID, lines, ok := h.bindOrderLines(c)
	if !ok {
		return
	}

	result, err := h.stock.ReserveStock(c.Request.Context(), appinv.ReserveStockRequest{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Items:       lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !result.OK {
		code := shared.CodeInsufficientAvailableStock
		if len(result.Failures) > 0 && result.Failures[0].Code != "" {
			code = result.Failures[0].Code
		}
		h.failureWithData(c, code, fmt.Sprintf("%d item(s) could not be reserved", len(result.Failures)), result)
		return
	}
	h.Success(c, result)
}

// ReleaseReservedStock releases an order's reservations. Items whose release
// failed are reported with their error code and must be retried.
func (h *StockHandler) ReleaseReservedStock(c *gin.Context) {
	orderID, warehouseID, lines, ok := h.bindOrderLines(c)
	if !ok {
		return
	}

	result, err := h.stock.ReleaseReservedStock(c.Request.Context(), appinv.ReleaseStockRequest{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Items:       lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := ReleaseResponse{OrderID: result.OrderID, WarehouseID: result.WarehouseID}
	for _, line := range result.Items {
		resp.Items = append(resp.Items, ReleaseLineResponse{
			ItemID:    line.ItemID,
			Requested: line.Requested,
			Released:  line.Released,
			ErrorCode: shared.ErrorCode(line.Err),
		})
	}
	if failed := result.Failed(); len(failed) > 0 {
		code := shared.ErrorCode(failed[0].Err)
		if code == "" {
			code = dto.ErrCodeInternal
		}
		if shared.IsTransient(failed[0].Err) {
			c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		}
		h.failureWithData(c, code, fmt.Sprintf("%d item(s) could not be released", len(failed)), resp)
		return
	}
	h.Success(c, resp)
}

// DeductStockOnFulfillment consumes stock for a fulfilled order in FEFO order
func (h *StockHandler) DeductStockOnFulfillment(c *gin.Context) {
	orderID, warehouseID, lines, ok := h.bindOrderLines(c)
	if !ok {
		return
	}

	result, err := h.stock.DeductStockOnFulfillment(c.Request.Context(), appinv.FulfillStockRequest{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Items:       lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// failureWithData answers a soft failure, keeping the typed outcome in data
func (h *StockHandler) failureWithData(c *gin.Context, code, message string, data any) {
	resp := dto.NewErrorResponseWithRequestID(code, message, getRequestID(c))
	resp.Data = data
	c.JSON(dto.GetHTTPStatus(code), resp)
}

// ===================== Items =====================

func (h *StockHandler) itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeInvalidItem, "Invalid item ID format"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *StockHandler) queryWarehouse(c *gin.Context) (*uuid.UUID, bool) {
	warehouseID, err := parseOptionalUUID("warehouse_id", c.Query("warehouse_id"))
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return warehouseID, true
}

// GetStock returns an item's stock in one warehouse, or its totals across
// warehouses when no warehouse_id is given
func (h *StockHandler) GetStock(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	warehouseID, ok := h.queryWarehouse(c)
	if !ok {
		return
	}

	var view *appinv.StockView
	var err error
	if warehouseID != nil {
		view, err = h.stock.GetStock(c.Request.Context(), itemID, warehouseID)
	} else {
		view, err = h.stock.GetStockByItemID(c.Request.Context(), itemID)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if view == nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeNotFound, "No stock recorded for item"))
		return
	}
	h.Success(c, view)
}

// CheckAvailability reports whether ?quantity= can be reserved
func (h *StockHandler) CheckAvailability(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	warehouseID, ok := h.queryWarehouse(c)
	if !ok {
		return
	}
	raw, err := strconv.ParseFloat(c.Query("quantity"), 64)
	if err != nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeInvalidQuantity, "quantity must be a number"))
		return
	}
	qty, err := toQuantity(raw)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	available, err := h.stock.CheckAvailability(c.Request.Context(), itemID, qty, warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, AvailabilityResponse{ItemID: itemID, Quantity: qty, Available: available})
}

// UpdateStock sets an item's available quantity to an absolute value
func (h *StockHandler) UpdateStock(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	var req UpdateStockHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	warehouseID, err := parseOptionalUUID("warehouse_id", req.WarehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	batchID, err := parseOptionalUUID("batch_id", req.BatchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	qty, err := toQuantity(req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	view, err := h.stock.UpdateStock(c.Request.Context(), middleware.GetActor(c), appinv.UpdateStockRequest{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		Unit:        req.Unit,
		Reason:      req.Reason,
		BatchID:     batchID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// SetLowStockThreshold sets the level at which low-stock alerts fire
func (h *StockHandler) SetLowStockThreshold(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	var req SetThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	warehouseID, err := parseOptionalUUID("warehouse_id", req.WarehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	threshold, err := toQuantity(req.Threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	view, err := h.stock.SetLowStockThreshold(c.Request.Context(), middleware.GetActor(c), itemID, warehouseID, threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Reconcile compares the stock row with its batch ledger and repairs drift
func (h *StockHandler) Reconcile(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	warehouseID, ok := h.queryWarehouse(c)
	if !ok {
		return
	}

	report, err := h.stock.Reconcile(c.Request.Context(), middleware.GetActor(c), itemID, warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ListBatches returns the batch ledger of an item
func (h *StockHandler) ListBatches(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	warehouseID, ok := h.queryWarehouse(c)
	if !ok {
		return
	}

	batches, err := h.stock.ListBatches(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, batches)
}

func (h *StockHandler) bindListFilter(c *gin.Context) (shared.Filter, bool) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return shared.Filter{}, false
	}
	from, err := parseOptionalDate("from", req.From)
	if err != nil {
		h.HandleError(c, err)
		return shared.Filter{}, false
	}
	to, err := parseOptionalDate("to", req.To)
	if err != nil {
		h.HandleError(c, err)
		return shared.Filter{}, false
	}
	return shared.Filter{Page: req.Page, PageSize: req.PageSize, From: from, To: to}.Normalize(), true
}

// ListHistory returns an item's stock history, newest first
func (h *StockHandler) ListHistory(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	page, err := h.stock.ListHistory(c.Request.Context(), itemID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ListWastage returns an item's wastage events, newest first
func (h *StockHandler) ListWastage(c *gin.Context) {
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	page, err := h.stock.ListWastage(c.Request.Context(), itemID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ===================== Batches and QC =====================

// ReceiveBatch books a receipt as a new batch
func (h *StockHandler) ReceiveBatch(c *gin.Context) {
	var req ReceiveBatchHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	warehouseID, err := parseOptionalUUID("warehouse_id", req.WarehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	qty, err := toQuantity(req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	cost, err := toDecimal(shared.CodeInvalidCost, "Unit cost", req.UnitCost)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	expiry, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeInvalidExpiry, "expiry_date must be a date (YYYY-MM-DD)"))
		return
	}

	view, err := h.stock.ReceiveBatch(c.Request.Context(), middleware.GetActor(c), appinv.ReceiveBatchRequest{
		ItemID:      uuid.MustParse(req.ItemID),
		WarehouseID: warehouseID,
		Quantity:    qty,
		UnitCost:    cost,
		ExpiryDate:  expiry,
		BatchNumber: req.BatchNumber,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

func (h *StockHandler) batchID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeInvalidInput, "Invalid batch ID format"))
		return uuid.Nil, false
	}
	return id, true
}

// InspectBatch records a pass or fail inspection
func (h *StockHandler) InspectBatch(c *gin.Context) {
	batchID, ok := h.batchID(c)
	if !ok {
		return
	}
	var req InspectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	result, err := inventory.ParseQCResult(req.Result)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	view, err := h.stock.InspectBatch(c.Request.Context(), middleware.GetActor(c), batchID, result, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// QuarantineBatch places a batch on hold
func (h *StockHandler) QuarantineBatch(c *gin.Context) {
	batchID, ok := h.batchID(c)
	if !ok {
		return
	}
	var req QuarantineBatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.ValidationError(c, err)
			return
		}
	}

	view, err := h.stock.QuarantineBatch(c.Request.Context(), middleware.GetActor(c), batchID, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// ReleaseBatch releases an inspected batch for sale
func (h *StockHandler) ReleaseBatch(c *gin.Context) {
	batchID, ok := h.batchID(c)
	if !ok {
		return
	}

	view, err := h.stock.ReleaseBatch(c.Request.Context(), middleware.GetActor(c), batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// ===================== Wastage and transfers =====================

// RecordWastage writes off spoiled, damaged or lost stock
func (h *StockHandler) RecordWastage(c *gin.Context) {
	var req RecordWastageHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	warehouseID, err := parseOptionalUUID("warehouse_id", req.WarehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	batchID, err := parseOptionalUUID("batch_id", req.BatchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	qty, err := toQuantity(req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	view, err := h.stock.RecordWastage(c.Request.Context(), middleware.GetActor(c), appinv.RecordWastageRequest{
		ItemID:      uuid.MustParse(req.ItemID),
		WarehouseID: warehouseID,
		Quantity:    qty,
		Unit:        req.Unit,
		Reason:      req.Reason,
		BatchID:     batchID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// TransferStock moves released stock to another warehouse
func (h *StockHandler) TransferStock(c *gin.Context) {
	var req TransferStockHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	qty, err := toQuantity(req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.stock.TransferStock(c.Request.Context(), middleware.GetActor(c), appinv.TransferStockRequest{
		ItemID:          uuid.MustParse(req.ItemID),
		FromWarehouseID: uuid.MustParse(req.FromWarehouseID),
		ToWarehouseID:   uuid.MustParse(req.ToWarehouseID),
		Quantity:        qty,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ===================== Reports =====================

func (h *StockHandler) expiryRequest(c *gin.Context) (appinv.ExpiryReportRequest, bool) {
	warehouseID, ok := h.queryWarehouse(c)
	if !ok {
		return appinv.ExpiryReportRequest{}, false
	}
	today, err := parseOptionalDate("today", c.Query("today"))
	if err != nil {
		h.HandleError(c, err)
		return appinv.ExpiryReportRequest{}, false
	}
	return appinv.ExpiryReportRequest{WarehouseID: warehouseID, Today: today}, true
}

// ExpiryReport classifies stocked items by the freshness of their
// nearest-expiring batch
func (h *StockHandler) ExpiryReport(c *gin.Context) {
	req, ok := h.expiryRequest(c)
	if !ok {
		return
	}

	report, err := h.stock.ExpiryReport(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ExportExpiryReport streams the expiry report as a spreadsheet. When the
// report was also uploaded, X-Report-URL carries the download link.
func (h *StockHandler) ExportExpiryReport(c *gin.Context) {
	req, ok := h.expiryRequest(c)
	if !ok {
		return
	}

	file, err := h.stock.ExportExpiryReport(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if file.URL != "" {
		c.Header("X-Report-URL", file.URL)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
