package persistence

import (
	"context"
	"errors"
	"fmt"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATEs that abort a transaction which succeeds on replay.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// NewRepositories builds the stock repositories on top of db. Passing a
// transaction handle scopes every repository to that transaction.
func NewRepositories(db *gorm.DB) appinv.Repositories {
	return appinv.Repositories{
		Stock:        NewGormStockItemRepository(db),
		Batches:      NewGormBatchRepository(db),
		Reservations: NewGormReservationRepository(db),
		History:      NewGormStockHistoryRepository(db),
		Wastage:      NewGormWastageRepository(db),
		Warehouses:   NewGormWarehouseRepository(db),
		Policies:     NewGormItemPolicyRepository(db),
	}
}

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed. Deadlock and
// serialization aborts come back as shared.ErrConcurrencyConflict so the
// caller's retry policy replays them.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
	return translateTxError(err)
}

func translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateDeadlockDetected, sqlStateSerializationFailure:
		return fmt.Errorf("%w: %w", shared.ErrConcurrencyConflict, err)
	}
	return err
}

// Ensure GormTransactionScope implements TransactionScope
var _ appinv.TransactionScope = (*GormTransactionScope)(nil)
