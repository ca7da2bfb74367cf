package inventory

import (
	"context"

	"github.com/erp/stockengine/internal/domain/inventory"
)

// TransactionScope provides transactional access to the stock repositories.
// All repository operations performed inside Execute share one database
// transaction and are committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to every stock repository.
// Inside a TransactionScope they share the transaction; outside of one they
// serve non-locking snapshot reads.
//
// Aggregate boundary notes:
//   - StockRepo owns the StockItem aggregate (available/reserved/qc hold).
//   - BatchRepo is the batch ledger. Batches change only together with their
//     StockItem, under the same lock key and transaction.
//   - HistoryRepo and WastageRepo are append-only.
type TransactionalRepositories interface {
	StockRepo() inventory.StockItemRepository
	BatchRepo() inventory.BatchRepository
	ReservationRepo() inventory.ReservationRepository
	HistoryRepo() inventory.StockHistoryRepository
	WastageRepo() inventory.WastageRepository
	WarehouseRepo() inventory.WarehouseRepository
	PolicyRepo() inventory.ItemPolicyRepository
}

// Repositories is a plain TransactionalRepositories value
type Repositories struct {
	Stock        inventory.StockItemRepository
	Batches      inventory.BatchRepository
	Reservations inventory.ReservationRepository
	History      inventory.StockHistoryRepository
	Wastage      inventory.WastageRepository
	Warehouses   inventory.WarehouseRepository
	Policies     inventory.ItemPolicyRepository
}

func (r Repositories) StockRepo() inventory.StockItemRepository { return r.Stock }
func (r Repositories) BatchRepo() inventory.BatchRepository { return r.Batches }
func (r Repositories) ReservationRepo() inventory.ReservationRepository { return r.Reservations }
func (r Repositories) HistoryRepo() inventory.StockHistoryRepository { return r.History }
func (r Repositories) WastageRepo() inventory.WastageRepository { return r.Wastage }
func (r Repositories) WarehouseRepo() inventory.WarehouseRepository { return r.Warehouses }
func (r Repositories) PolicyRepo() inventory.ItemPolicyRepository { return r.Policies }

// NoOpTransactionScope runs functions without a real transaction.
// This is useful for testing with in-memory repositories.
type NoOpTransactionScope struct {
	repos TransactionalRepositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over repos
func NewNoOpTransactionScope(repos TransactionalRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.repos)
}

// Ensure implementations satisfy the interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = Repositories{}
