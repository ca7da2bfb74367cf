package inventory

import (
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockView represents a stock aggregate (or an item's cross-warehouse total)
type StockView struct {
	ItemID            uuid.UUID       `json:"item_id"`
	WarehouseID       *uuid.UUID      `json:"warehouse_id,omitempty"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	SellableQuantity  decimal.Decimal `json:"sellable_quantity"`
	QCHoldQuantity    decimal.Decimal `json:"qc_hold_quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	AvgCost           decimal.Decimal `json:"avg_cost"`
	TotalValue        decimal.Decimal `json:"total_value"`
	IsLowStock        bool            `json:"is_low_stock"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ToStockView converts a StockItem to its view
func ToStockView(item *inventory.StockItem) StockView {
	warehouseID := item.WarehouseID
	return StockView{
		ItemID:            item.ItemID,
		WarehouseID:       &warehouseID,
		AvailableQuantity: item.Available(),
		ReservedQuantity:  item.Reserved(),
		SellableQuantity:  item.Sellable(),
		QCHoldQuantity:    item.QCHold(),
		LowStockThreshold: item.LowStockThreshold(),
		AvgCost:           item.AvgCost(),
		TotalValue:        item.TotalValue(),
		IsLowStock:        item.IsAtOrBelowThreshold(),
		UpdatedAt:         item.UpdatedAt,
	}
}

// sumStockViews totals an item across warehouses. The average cost is
// value-weighted; thresholds are summed.
func sumStockViews(itemID uuid.UUID, items []*inventory.StockItem) StockView {
	total := StockView{
		ItemID:            itemID,
		AvailableQuantity: decimal.Zero,
		ReservedQuantity:  decimal.Zero,
		SellableQuantity:  decimal.Zero,
		QCHoldQuantity:    decimal.Zero,
		LowStockThreshold: decimal.Zero,
		AvgCost:           decimal.Zero,
		TotalValue:        decimal.Zero,
	}
	for _, it := range items {
		total.AvailableQuantity = total.AvailableQuantity.Add(it.Available())
		total.ReservedQuantity = total.ReservedQuantity.Add(it.Reserved())
		total.QCHoldQuantity = total.QCHoldQuantity.Add(it.QCHold())
		total.LowStockThreshold = total.LowStockThreshold.Add(it.LowStockThreshold())
		total.TotalValue = total.TotalValue.Add(it.TotalValue())
		if it.UpdatedAt.After(total.UpdatedAt) {
			total.UpdatedAt = it.UpdatedAt
		}
	}
	total.SellableQuantity = total.AvailableQuantity.Sub(total.ReservedQuantity)
	if total.AvailableQuantity.IsPositive() {
		total.AvgCost = total.TotalValue.Div(total.AvailableQuantity).Round(4)
	}
	total.IsLowStock = total.SellableQuantity.LessThanOrEqual(total.LowStockThreshold)
	return total
}

// BatchView represents a batch ledger row
type BatchView struct {
	ID                  uuid.UUID             `json:"id"`
	ItemID              uuid.UUID             `json:"item_id"`
	WarehouseID         uuid.UUID             `json:"warehouse_id"`
	BatchNumber         string                `json:"batch_number"`
	ReceivedQuantity    decimal.Decimal       `json:"received_quantity"`
	ConsumedQuantity    decimal.Decimal       `json:"consumed_quantity"`
	TransferredQuantity decimal.Decimal       `json:"transferred_quantity"`
	WrittenOffQuantity  decimal.Decimal       `json:"written_off_quantity"`
	RemainingQuantity   decimal.Decimal       `json:"remaining_quantity"`
	UnitCost            decimal.Decimal       `json:"unit_cost"`
	ExpiryDate          inventory.ExpiryDate  `json:"expiry_date"`
	QCStatus            inventory.QCStatus    `json:"qc_status"`
	LastQCResult        inventory.QCResult    `json:"last_qc_result,omitempty"`
	LastQCAt            *time.Time            `json:"last_qc_at,omitempty"`
	LastQCNotes         string                `json:"last_qc_notes,omitempty"`
	Source              inventory.BatchSource `json:"source"`
	ReceivedAt          time.Time             `json:"received_at"`
	CreatedAt           time.Time             `json:"created_at"`
}

// ToBatchView converts a Batch to its view
func ToBatchView(b *inventory.Batch) BatchView {
	qc := b.QC()
	return BatchView{
		ID:                  b.ID,
		ItemID:              b.ItemID,
		WarehouseID:         b.WarehouseID,
		BatchNumber:         b.BatchNumber,
		ReceivedQuantity:    b.Received(),
		ConsumedQuantity:    b.Consumed(),
		TransferredQuantity: b.Transferred(),
		WrittenOffQuantity:  b.WrittenOff(),
		RemainingQuantity:   b.Remaining(),
		UnitCost:            b.UnitCost,
		ExpiryDate:          b.Expiry,
		QCStatus:            qc.Status(),
		LastQCResult:        qc.Result(),
		LastQCAt:            qc.At(),
		LastQCNotes:         qc.Notes(),
		Source:              b.Source,
		ReceivedAt:          b.ReceivedAt,
		CreatedAt:           b.CreatedAt,
	}
}

// ToBatchViews converts a list of batches
func ToBatchViews(batches []*inventory.Batch) []BatchView {
	out := make([]BatchView, len(batches))
	for i, b := range batches {
		out[i] = ToBatchView(b)
	}
	return out
}

// ReceiveBatchRequest books a stock receipt
type ReceiveBatchRequest struct {
	ItemID      uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	ExpiryDate  *time.Time
	BatchNumber string
}

// UpdateStockRequest sets the available quantity to an absolute value
type UpdateStockRequest struct {
	ItemID      uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal
	Unit        string
	Reason      string
	BatchID     *uuid.UUID
}

// ItemQuantity is one line of a multi-item stock request
type ItemQuantity struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReserveStockRequest reserves several items for one order, all or nothing
type ReserveStockRequest struct {
	OrderID     string
	WarehouseID *uuid.UUID
	Items       []ItemQuantity
}

// ReservationFailure describes an item that could not be reserved
type ReservationFailure struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Requested decimal.Decimal `json:"requested"`
	Sellable  decimal.Decimal `json:"sellable"`
	Code      string          `json:"code"`
}

// ReservedLine is one applied reservation
type ReservedLine struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Reserved decimal.Decimal `json:"reserved_quantity"`
}

// ReservationResult is the soft outcome of ReserveStock. When OK is false
// nothing was reserved.
type ReservationResult struct {
	OK          bool                 `json:"ok"`
	OrderID     string               `json:"order_id,omitempty"`
	WarehouseID uuid.UUID            `json:"warehouse_id"`
	Items       []ReservedLine       `json:"items,omitempty"`
	Failures    []ReservationFailure `json:"failures,omitempty"`
}

// ReleaseStockRequest releases reservations
type ReleaseStockRequest struct {
	OrderID     string
	WarehouseID *uuid.UUID
	Items       []ItemQuantity
}

// ReleaseLine is the per-item outcome of a release. Err is set when the
// release of that item failed and should be retried.
type ReleaseLine struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Requested decimal.Decimal `json:"requested"`
	Released  decimal.Decimal `json:"released"`
	Err       error           `json:"-"`
}

// ReleaseResult is the typed release outcome
type ReleaseResult struct {
	OrderID     string        `json:"order_id,omitempty"`
	WarehouseID uuid.UUID     `json:"warehouse_id"`
	Items       []ReleaseLine `json:"items"`
}

// Failed returns the lines whose release must be retried
func (r *ReleaseResult) Failed() []ReleaseLine {
	var out []ReleaseLine
	for _, l := range r.Items {
		if l.Err != nil {
			out = append(out, l)
		}
	}
	return out
}

// FulfillStockRequest deducts stock for a fulfilled order
type FulfillStockRequest struct {
	OrderID     string
	WarehouseID *uuid.UUID
	Items       []ItemQuantity
}

// FulfilledLine is one item's deduction
type FulfilledLine struct {
	ItemID          uuid.UUID                 `json:"item_id"`
	Quantity        decimal.Decimal           `json:"quantity"`
	ReservedPortion decimal.Decimal           `json:"reserved_portion"`
	Batches         []inventory.DeductedBatch `json:"batches"`
}

// FulfillmentResult reports the FEFO allocation applied per item
type FulfillmentResult struct {
	OrderID     string          `json:"order_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Items       []FulfilledLine `json:"items"`
}

// TransferStockRequest moves released stock between warehouses
type TransferStockRequest struct {
	ItemID          uuid.UUID
	FromWarehouseID uuid.UUID
	ToWarehouseID   uuid.UUID
	Quantity        decimal.Decimal
}

// TransferResult reports both sides of a transfer
type TransferResult struct {
	ItemID  uuid.UUID                 `json:"item_id"`
	From    StockView                 `json:"from"`
	To      StockView                 `json:"to"`
	Batches []inventory.DeductedBatch `json:"batches"`
}

// RecordWastageRequest writes off spoiled, damaged or lost stock
type RecordWastageRequest struct {
	ItemID      uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal
	Unit        string
	Reason      string
	BatchID     *uuid.UUID
}

// WastageView represents a wastage event
type WastageView struct {
	ID                uuid.UUID       `json:"id"`
	ItemID            uuid.UUID       `json:"item_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	BatchID           uuid.UUID       `json:"batch_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit"`
	Reason            string          `json:"reason"`
	ReportedBy        string          `json:"reported_by"`
	RecordedAt        time.Time       `json:"recorded_at"`
	ReservedClampedBy decimal.Decimal `json:"reserved_clamped_by"`
}

// ToWastageView converts a wastage event to its view
func ToWastageView(e *inventory.WastageEvent) WastageView {
	return WastageView{
		ID:                e.ID,
		ItemID:            e.ItemID,
		WarehouseID:       e.WarehouseID,
		BatchID:           e.BatchID,
		Quantity:          e.Quantity.Amount(),
		Unit:              e.Quantity.Unit(),
		Reason:            e.Reason,
		ReportedBy:        e.ReportedBy,
		RecordedAt:        e.RecordedAt,
		ReservedClampedBy: decimal.Zero,
	}
}

// HistoryView represents a stock history entry
type HistoryView struct {
	ID            uuid.UUID            `json:"id"`
	WarehouseID   uuid.UUID            `json:"warehouse_id"`
	BatchID       *uuid.UUID           `json:"batch_id,omitempty"`
	ChangeType    inventory.ChangeType `json:"change_type"`
	Quantity      decimal.Decimal      `json:"quantity"`
	BalanceBefore decimal.Decimal      `json:"balance_before"`
	BalanceAfter  decimal.Decimal      `json:"balance_after"`
	Unit          string               `json:"unit,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	OrderID       string               `json:"order_id,omitempty"`
	ChangedBy     string               `json:"changed_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ToHistoryView converts a history entry to its view
func ToHistoryView(e inventory.StockHistoryEntry) HistoryView {
	return HistoryView{
		ID:            e.ID,
		WarehouseID:   e.WarehouseID,
		BatchID:       e.BatchID,
		ChangeType:    e.ChangeType,
		Quantity:      e.Quantity,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Unit:          e.Unit,
		Reason:        e.Reason,
		OrderID:       e.OrderID,
		ChangedBy:     e.ChangedBy,
		CreatedAt:     e.CreatedAt,
	}
}

// ReconcileReport is the outcome of a ledger reconciliation
type ReconcileReport struct {
	ItemID      uuid.UUID `json:"item_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Drift       bool      `json:"drift"`
	inventory.ReconcileResult
}

// ExpiryReportRequest selects the scope of an expiry report
type ExpiryReportRequest struct {
	WarehouseID *uuid.UUID
	// Today overrides the reporting date; defaults to the current date
	Today *time.Time
}

// ExpiryReportView is the expiry report
type ExpiryReportView struct {
	WarehouseID    *uuid.UUID             `json:"warehouse_id,omitempty"`
	Today          string                 `json:"today"`
	SoonWindowDays int                    `json:"soon_window_days"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Items          []inventory.ItemExpiry `json:"items"`
}

// ReportFile is a rendered report
type ReportFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Key         string `json:"key,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ExpiredReservationStats summarises an expiry sweep
type ExpiredReservationStats struct {
	TotalExpired    int             `json:"total_expired"`
	SuccessReleased int             `json:"success_released"`
	FailedReleases  int             `json:"failed_releases"`
	ReleasedQty     decimal.Decimal `json:"released_quantity"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// HistoryPage is a page of history entries
type HistoryPage = shared.Paginated[HistoryView]

// WastagePage is a page of wastage events
type WastagePage = shared.Paginated[WastageView]
