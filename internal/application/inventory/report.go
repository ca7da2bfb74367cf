package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"go.uber.org/zap"
)

// ErrReportRendererMissing is returned by ExportExpiryReport when no renderer is configured
var ErrReportRendererMissing = errors.New("expiry report renderer is not configured")

// ExpiryReport classifies every item holding stock by the freshness of its
// nearest-expiring batch. Batches in any QC state count.
func (s *Service) ExpiryReport(ctx context.Context, req ExpiryReportRequest) (*ExpiryReportView, error) {
	today := s.today()
	if req.Today != nil {
		today = inventory.DateOf(*req.Today)
	}
	itemIDs, err := s.reads.StockRepo().ListItemIDs(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("list stocked items: %w", err)
	}
	batches, err := s.reads.BatchRepo().ListWithRemaining(ctx, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("list batches with stock: %w", err)
	}
	return &ExpiryReportView{
		WarehouseID:    req.WarehouseID,
		Today:          today.Format("2006-01-02"),
		SoonWindowDays: s.cfg.ExpirySoonWindowDays,
		GeneratedAt:    s.now(),
		Items:          inventory.BuildExpiryReport(itemIDs, batches, today, s.cfg.ExpirySoonWindowDays),
	}, nil
}

// ExportExpiryReport renders the expiry report and, when object storage is
// configured, uploads it and returns a presigned download URL
func (s *Service) ExportExpiryReport(ctx context.Context, req ExpiryReportRequest) (*ReportFile, error) {
	if s.renderer == nil {
		return nil, ErrReportRendererMissing
	}
	started := time.Now()
	file, err := s.exportExpiryReport(ctx, req)
	s.metrics.ObserveOperation(ctx, OpExportExpiryReport, err, time.Since(started))
	if err != nil {
		s.logger.Error("expiry report export failed", zap.Error(err))
		return nil, err
	}
	return file, nil
}

func (s *Service) exportExpiryReport(ctx context.Context, req ExpiryReportRequest) (*ReportFile, error) {
	report, err := s.ExpiryReport(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := s.renderer.RenderExpiryReport(report)
	if err != nil {
		return nil, fmt.Errorf("render expiry report: %w", err)
	}
	file := &ReportFile{
		Name:        "expiry-report-" + report.Today + s.renderer.Extension(),
		ContentType: s.renderer.ContentType(),
		Data:        data,
	}
	if s.storage == nil {
		return file, nil
	}
	file.Key = fmt.Sprintf("reports/expiry/%s/%d-%s", report.Today, report.GeneratedAt.Unix(), file.Name)
	if err := s.storage.Upload(ctx, file.Key, file.ContentType, data); err != nil {
		return nil, fmt.Errorf("upload expiry report: %w", err)
	}
	url, err := s.storage.PresignGet(ctx, file.Key, s.cfg.ReportURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign expiry report: %w", err)
	}
	file.URL = url
	return file, nil
}
