package inventory

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Unlock releases keys obtained from a KeyLocker
type Unlock func() error

// KeyLocker serializes mutations per stock key.
//
// Acquire blocks until every key is held or the implementation's wait budget
// is spent, in which case it returns shared.ErrStockBusy. Implementations take
// keys in the order given; callers pass them through LockKeys first so that
// overlapping multi-key requests cannot deadlock.
type KeyLocker interface {
	Acquire(ctx context.Context, keys ...string) (Unlock, error)
}

// StockLockKey is the mutual exclusion key of one item in one warehouse
func StockLockKey(itemID, warehouseID uuid.UUID) string {
	return "stock:" + itemID.String() + ":" + warehouseID.String()
}

// LockKeys returns keys de-duplicated and in ascending order
func LockKeys(keys ...string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
