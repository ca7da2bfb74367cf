package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpiryStatus is the freshness classification of an item
type ExpiryStatus string

const (
	ExpiryStatusExpired  ExpiryStatus = "expired"
	ExpiryStatusExpiring ExpiryStatus = "expiring"
	ExpiryStatusMissing  ExpiryStatus = "missing"
	ExpiryStatusOK       ExpiryStatus = "ok"
)

func (s ExpiryStatus) severity() int {
	switch s {
	case ExpiryStatusExpired:
		return 0
	case ExpiryStatusExpiring:
		return 1
	case ExpiryStatusMissing:
		return 2
	}
	return 3
}

// ItemExpiry is one row of the expiry report
type ItemExpiry struct {
	ItemID        uuid.UUID       `json:"item_id"`
	Remaining     decimal.Decimal `json:"remaining_quantity"`
	NearestExpiry ExpiryDate      `json:"nearest_expiry"`
	DaysToExpiry  *int            `json:"days_to_expiry,omitempty"`
	BatchCount    int             `json:"batch_count"`
	Status        ExpiryStatus    `json:"status"`
}

// ClassifyExpiry derives an item's status from its batches. Only batches with
// remaining stock count. No stock is ok; otherwise the nearest expiry decides
// between expired, expiring (within soonWindowDays) and ok, and stock with no
// expiry recorded on any batch is missing.
func ClassifyExpiry(itemID uuid.UUID, batches []*Batch, today time.Time, soonWindowDays int) ItemExpiry {
	row := ItemExpiry{ItemID: itemID, Remaining: decimal.Zero, Status: ExpiryStatusOK}
	nearest := NoExpiry()
	for _, b := range batches {
		if b.ItemID != itemID || !b.Remaining().IsPositive() {
			continue
		}
		row.Remaining = row.Remaining.Add(b.Remaining())
		row.BatchCount++
		if b.Expiry.Compare(nearest) < 0 {
			nearest = b.Expiry
		}
	}
	if !row.Remaining.IsPositive() {
		return row
	}
	row.NearestExpiry = nearest
	days, ok := nearest.DaysUntil(today)
	if !ok {
		row.Status = ExpiryStatusMissing
		return row
	}
	row.DaysToExpiry = &days
	switch {
	case nearest.IsExpiredOn(today):
		row.Status = ExpiryStatusExpired
	case days <= soonWindowDays:
		row.Status = ExpiryStatusExpiring
	default:
		row.Status = ExpiryStatusOK
	}
	return row
}

// BuildExpiryReport classifies every item in itemIDs or present in batches,
// so an item whose stock ran out still reports ok. Rows are ordered most
// urgent first, then by nearest expiry, then by item.
func BuildExpiryReport(itemIDs []uuid.UUID, batches []*Batch, today time.Time, soonWindowDays int) []ItemExpiry {
	byItem := make(map[uuid.UUID][]*Batch, len(itemIDs))
	for _, id := range itemIDs {
		byItem[id] = nil
	}
	for _, b := range batches {
		byItem[b.ItemID] = append(byItem[b.ItemID], b)
	}
	rows := make([]ItemExpiry, 0, len(byItem))
	for itemID, group := range byItem {
		rows = append(rows, ClassifyExpiry(itemID, group, today, soonWindowDays))
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Status.severity() != b.Status.severity() {
			return a.Status.severity() < b.Status.severity()
		}
		if c := a.NearestExpiry.Compare(b.NearestExpiry); c != 0 {
			return c < 0
		}
		return a.ItemID.String() < b.ItemID.String()
	})
	return rows
}
