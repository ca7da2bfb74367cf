package inventory

import (
	"context"
	"time"
)

// Metrics observes service operations
type Metrics interface {
	ObserveOperation(ctx context.Context, operation string, err error, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(context.Context, string, error, time.Duration) {}

// ReportRenderer renders report rows to a downloadable document
type ReportRenderer interface {
	// ContentType is the MIME type of the rendered document
	ContentType() string
	// Extension is the file extension including the dot
	Extension() string
	RenderExpiryReport(report *ExpiryReportView) ([]byte, error)
}

// ObjectStorage stores exported reports
type ObjectStorage interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	// PresignGet returns a time-limited download URL for key
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
