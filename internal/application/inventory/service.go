package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names reported to Metrics
const (
	OpReceiveBatch       = "receive_batch"
	OpUpdateStock        = "update_stock"
	OpSetThreshold       = "set_low_stock_threshold"
	OpReconcile          = "reconcile"
	OpInspectBatch       = "inspect_batch"
	OpReleaseBatch       = "release_batch"
	OpQuarantineBatch    = "quarantine_batch"
	OpReserveStock       = "reserve_stock"
	OpReleaseStock       = "release_stock"
	OpDeductStock        = "deduct_stock"
	OpTransferStock      = "transfer_stock"
	OpExpireReservation  = "expire_reservation"
	OpRecordWastage      = "record_wastage"
	OpExportExpiryReport = "export_expiry_report"
)

// Service handles stock reservation, batch consumption, QC and wastage.
//
// Every mutation runs under the KeyLocker for the affected stock keys and
// inside one TransactionScope transaction. Domain events are published only
// after the transaction commits.
type Service struct {
	reads     TransactionalRepositories
	txScope   TransactionScope
	locker    KeyLocker
	cfg       Config
	logger    *zap.Logger
	publisher shared.EventPublisher
	metrics   Metrics
	renderer  ReportRenderer
	storage   ObjectStorage
	now       func() time.Time
}

// NewService creates a new Service. reads serves non-locking snapshot reads.
func NewService(
	reads TransactionalRepositories,
	txScope TransactionScope,
	locker KeyLocker,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultUnit == "" {
		cfg.DefaultUnit = DefaultConfig().DefaultUnit
	}
	if cfg.ExpirySweepLimit <= 0 {
		cfg.ExpirySweepLimit = DefaultConfig().ExpirySweepLimit
	}
	return &Service{
		reads:   reads,
		txScope: txScope,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		metrics: noopMetrics{},
		now:     time.Now,
	}
}

// SetEventPublisher sets the publisher for committed domain events
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetMetrics sets the operation observer
func (s *Service) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

// SetReportRenderer sets the renderer used by ExportExpiryReport
func (s *Service) SetReportRenderer(r ReportRenderer) {
	s.renderer = r
}

// SetObjectStorage enables uploading exported reports
func (s *Service) SetObjectStorage(o ObjectStorage) {
	s.storage = o
}

// SetClock overrides the time source (tests, stress harness)
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// unitOfWork is the transactional context handed to a mutation
type unitOfWork struct {
	TransactionalRepositories
	ctx    context.Context
	events []shared.DomainEvent
}

// lockItem loads the stock row with a row lock; ErrNotFound if absent
func (u *unitOfWork) lockItem(itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	return u.StockRepo().FindByItemAndWarehouseForUpdate(u.ctx, itemID, warehouseID)
}

// lockOrCreateItem loads the stock row, starting an empty one if absent
func (u *unitOfWork) lockOrCreateItem(itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	item, err := u.lockItem(itemID, warehouseID)
	if errors.Is(err, shared.ErrNotFound) {
		return inventory.NewStockItem(itemID, warehouseID)
	}
	return item, err
}

// saveItem persists the aggregate and queues its events for after commit
func (u *unitOfWork) saveItem(item *inventory.StockItem) error {
	if err := u.StockRepo().Save(u.ctx, item); err != nil {
		return err
	}
	u.events = append(u.events, item.GetDomainEvents()...)
	item.ClearDomainEvents()
	return nil
}

func (u *unitOfWork) record(entries ...*inventory.StockHistoryEntry) error {
	return u.HistoryRepo().Append(u.ctx, entries...)
}

// mutate runs fn under the locks for keys inside one transaction, retrying
// transient failures, and publishes the collected events once committed
func (s *Service) mutate(ctx context.Context, op string, keys []string, fields []zap.Field, fn func(u *unitOfWork) error) error {
	started := time.Now()
	var events []shared.DomainEvent
	err := s.cfg.Retry.Do(ctx, func() error {
		unlock, err := s.locker.Acquire(ctx, LockKeys(keys...)...)
		if err != nil {
			return err
		}
		defer s.release(op, unlock)

		u := &unitOfWork{ctx: ctx}
		if err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			u.TransactionalRepositories = repos
			return fn(u)
		}); err != nil {
			return err
		}
		events = u.events
		return nil
	})
	s.metrics.ObserveOperation(ctx, op, err, time.Since(started))
	if err != nil {
		s.logRejection(op, err, fields)
		return err
	}
	s.publishEvents(ctx, events)
	return nil
}

func (s *Service) release(op string, unlock Unlock) {
	if err := unlock(); err != nil {
		s.logger.Error("failed to release stock lock", zap.String("operation", op), zap.Error(err))
	}
}

func (s *Service) logRejection(op string, err error, fields []zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	var de *shared.DomainError
	switch {
	case errors.As(err, &de) && de.Transient:
		s.logger.Warn("stock operation gave up on a busy key", append(fields, zap.String("code", de.Code))...)
	case errors.As(err, &de):
		s.logger.Warn("stock operation rejected", append(fields, zap.String("code", de.Code))...)
	default:
		s.logger.Error("stock operation failed", fields...)
	}
}

// publishEvents publishes committed domain events. Failures are logged, not
// propagated; the stock change is already durable.
func (s *Service) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish stock events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// resolveWarehouse returns the explicit warehouse or the default active one
func (s *Service) resolveWarehouse(ctx context.Context, explicit *uuid.UUID) (uuid.UUID, error) {
	if explicit != nil && *explicit != uuid.Nil {
		return *explicit, nil
	}
	def, err := s.reads.WarehouseRepo().FindDefault(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return uuid.Nil, inventory.ErrNoDefaultWarehouse
		}
		return uuid.Nil, fmt.Errorf("find default warehouse: %w", err)
	}
	return inventory.ResolveWarehouse(nil, def)
}

// policyFor returns the catalog policy of an item or the configured default
func (s *Service) policyFor(ctx context.Context, itemID uuid.UUID) (inventory.ItemPolicy, error) {
	p, err := s.reads.PolicyRepo().FindByItemID(ctx, itemID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return inventory.DefaultItemPolicy(itemID, s.cfg.DefaultRequiresQC, s.cfg.DefaultUnit), nil
		}
		return inventory.ItemPolicy{}, fmt.Errorf("find item policy: %w", err)
	}
	if p.Unit == "" {
		p.Unit = s.cfg.DefaultUnit
	}
	return *p, nil
}

func (s *Service) today() time.Time {
	return inventory.DateOf(s.now())
}

func validateItem(itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return shared.NewDomainError(shared.CodeInvalidItem, "Item ID is required")
	}
	return nil
}

// normalizeLines validates request lines, merges duplicates by item and
// returns them in ascending item order, which is also the locking order
func normalizeLines(lines []ItemQuantity) ([]ItemQuantity, error) {
	if len(lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one item is required")
	}
	merged := make(map[uuid.UUID]ItemQuantity, len(lines))
	for _, l := range lines {
		if err := validateItem(l.ItemID); err != nil {
			return nil, err
		}
		if err := inventory.ValidatePositive(l.Quantity, "Quantity of item "+l.ItemID.String()); err != nil {
			return nil, err
		}
		if prev, ok := merged[l.ItemID]; ok {
			l.Quantity = prev.Quantity.Add(l.Quantity)
		}
		merged[l.ItemID] = l
	}
	out := make([]ItemQuantity, 0, len(merged))
	for _, l := range merged {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return out, nil
}

func lineKeys(lines []ItemQuantity, warehouseID uuid.UUID) []string {
	keys := make([]string, len(lines))
	for i, l := range lines {
		keys[i] = StockLockKey(l.ItemID, warehouseID)
	}
	return keys
}

func findBatch(batches []*inventory.Batch, id uuid.UUID) (*inventory.Batch, error) {
	for _, b := range batches {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, shared.NewDomainError(shared.CodeNotFound, "Batch "+id.String()+" not found for this item and warehouse")
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func orderLabel(orderID string) string {
	if strings.TrimSpace(orderID) == "" {
		return "system"
	}
	return "order:" + orderID
}
