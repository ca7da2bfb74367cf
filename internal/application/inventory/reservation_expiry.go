package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// reservationDeadline stamps new or extended reservations when a TTL is set
func (s *Service) reservationDeadline() *time.Time {
	if s.cfg.ReservationTTL <= 0 {
		return nil
	}
	t := s.now().Add(s.cfg.ReservationTTL)
	return &t
}

// ExpireReservations releases active reservations whose deadline passed
// before now. Each reservation is handled under its item's lock and re-checked
// inside the transaction, so a concurrent release or fulfilment wins.
func (s *Service) ExpireReservations(ctx context.Context, now time.Time) (*ExpiredReservationStats, error) {
	stats := &ExpiredReservationStats{ProcessedAt: now, ReleasedQty: decimal.Zero}

	expired, err := s.reads.ReservationRepo().FindExpired(ctx, now, s.cfg.ExpirySweepLimit)
	if err != nil {
		s.logger.Error("Failed to find expired reservations", zap.Error(err))
		return nil, err
	}
	stats.TotalExpired = len(expired)
	if stats.TotalExpired == 0 {
		s.logger.Debug("No expired reservations found")
		return stats, nil
	}
	s.logger.Info("Found expired reservations", zap.Int("count", stats.TotalExpired))

	for _, r := range expired {
		released, err := s.expireReservation(ctx, r, now)
		if err != nil {
			s.logger.Error("Failed to expire reservation",
				zap.String("reservation_id", r.ID.String()),
				zap.String("order_id", r.OrderID),
				zap.Error(err),
			)
			stats.FailedReleases++
			continue
		}
		stats.SuccessReleased++
		stats.ReleasedQty = stats.ReleasedQty.Add(released)
	}

	s.logger.Info("Completed reservation expiry sweep",
		zap.Int("total", stats.TotalExpired),
		zap.Int("released", stats.SuccessReleased),
		zap.Int("failed", stats.FailedReleases),
	)
	return stats, nil
}

func (s *Service) expireReservation(ctx context.Context, candidate *inventory.Reservation, now time.Time) (decimal.Decimal, error) {
	released := decimal.Zero
	fields := []zap.Field{zap.String("order_id", candidate.OrderID), zap.String("item_id", candidate.ItemID.String())}
	key := StockLockKey(candidate.ItemID, candidate.WarehouseID)
	err := s.mutate(ctx, OpExpireReservation, []string{key}, fields, func(u *unitOfWork) error {
		released = decimal.Zero
		// Stock row before the reservation, matching Reserve and Release.
		item, err := u.lockItem(candidate.ItemID, candidate.WarehouseID)
		if errors.Is(err, shared.ErrNotFound) {
			item = nil
		} else if err != nil {
			return err
		}
		r, err := u.ReservationRepo().FindActive(u.ctx, candidate.OrderID, candidate.ItemID, candidate.WarehouseID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if r.ID != candidate.ID || !r.IsExpired(now) {
			return nil
		}
		qty := r.Expire()
		if err := u.ReservationRepo().Save(u.ctx, r); err != nil {
			return err
		}
		if item == nil || !qty.IsPositive() {
			return nil
		}
		released, err = item.Release(qty, r.OrderID)
		if err != nil {
			return err
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeExpire,
			Quantity:      released.Neg(),
			BalanceBefore: item.Available(),
			OrderID:       r.OrderID,
			Reason:        "reservation expired",
			ChangedBy:     "system",
		}))
	})
	return released, err
}
