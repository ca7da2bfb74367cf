package inventory

import (
	"time"

	"github.com/erp/stockengine/internal/domain/shared/valueobject"
)

// Config holds the service's tunables
type Config struct {
	Retry RetryPolicy
	// ExpirySoonWindowDays marks batches expiring within this many days
	ExpirySoonWindowDays int
	// ReservationTTL stamps reservation rows with an expiry; zero disables it
	ReservationTTL time.Duration
	// ExpirySweepLimit bounds one ExpireReservations pass
	ExpirySweepLimit int
	// DefaultRequiresQC applies to items without a catalog policy
	DefaultRequiresQC bool
	DefaultUnit       string
	// ReportURLTTL is the lifetime of presigned report download links
	ReportURLTTL time.Duration
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Retry:                RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond},
		ExpirySoonWindowDays: 1,
		ExpirySweepLimit:     500,
		DefaultRequiresQC:    true,
		DefaultUnit:          valueobject.DefaultUnit,
		ReportURLTTL:         15 * time.Minute,
	}
}
