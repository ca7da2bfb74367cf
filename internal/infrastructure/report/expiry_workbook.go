// Package report renders stock reports into downloadable files.
package report

import (
	"bytes"
	"fmt"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/xuri/excelize/v2"
)

const (
	// XLSXContentType is the MIME type of the rendered workbook
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	expirySheet  = "Expiry"
	summarySheet = "Summary"
)

var expiryHeadings = []string{"Item ID", "Status", "Nearest Expiry", "Days To Expiry", "Remaining", "Batches"}

var statusFill = map[inventory.ExpiryStatus]string{
	inventory.ExpiryStatusExpired:  "#F8CBAD",
	inventory.ExpiryStatusExpiring: "#FFE699",
	inventory.ExpiryStatusMissing:  "#D9D9D9",
}

// ExpiryWorkbook renders the expiry report as an xlsx workbook with one row
// per item, coloured by status, and a summary sheet of counts per status
type ExpiryWorkbook struct{}

// NewExpiryWorkbook creates the renderer
func NewExpiryWorkbook() *ExpiryWorkbook {
	return &ExpiryWorkbook{}
}

// ContentType returns the xlsx MIME type
func (w *ExpiryWorkbook) ContentType() string { return XLSXContentType }

// Extension returns the file extension
func (w *ExpiryWorkbook) Extension() string { return ".xlsx" }

// RenderExpiryReport writes the report into a new workbook
func (w *ExpiryWorkbook) RenderExpiryReport(r *appinv.ExpiryReportView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", expirySheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeExpiryRows(f, r); err != nil {
		return nil, err
	}
	if err := writeSummary(f, r); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeExpiryRows(f *excelize.File, r *appinv.ExpiryReportView) error {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	fills := make(map[inventory.ExpiryStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}})
		if err != nil {
			return fmt.Errorf("failed to create fill style: %w", err)
		}
		fills[status] = id
	}

	headings := make([]interface{}, len(expiryHeadings))
	for i, h := range expiryHeadings {
		headings[i] = h
	}
	if err := f.SetSheetRow(expirySheet, "A1", &headings); err != nil {
		return fmt.Errorf("failed to write headings: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(expiryHeadings), 1)
	if err := f.SetCellStyle(expirySheet, "A1", last, header); err != nil {
		return fmt.Errorf("failed to style headings: %w", err)
	}

	for i, item := range r.Items {
		row := i + 2
		var days interface{} = ""
		if item.DaysToExpiry != nil {
			days = *item.DaysToExpiry
		}
		nearest := ""
		if item.NearestExpiry.IsSet() {
			nearest = item.NearestExpiry.String()
		}
		remaining, _ := item.Remaining.Float64()
		values := []interface{}{item.ItemID.String(), string(item.Status), nearest, days, remaining, item.BatchCount}

		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(expirySheet, start, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		if style, ok := fills[item.Status]; ok {
			end, _ := excelize.CoordinatesToCellName(len(expiryHeadings), row)
			if err := f.SetCellStyle(expirySheet, start, end, style); err != nil {
				return fmt.Errorf("failed to style row %d: %w", row, err)
			}
		}
	}

	if err := f.SetColWidth(expirySheet, "A", "A", 38); err != nil {
		return err
	}
	return f.SetPanes(expirySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, r *appinv.ExpiryReportView) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	counts := map[inventory.ExpiryStatus]int{}
	for _, item := range r.Items {
		counts[item.Status]++
	}
	warehouse := "all"
	if r.WarehouseID != nil {
		warehouse = r.WarehouseID.String()
	}

	rows := [][]interface{}{
		{"Report Date", r.Today},
		{"Warehouse", warehouse},
		{"Soon Window (days)", r.SoonWindowDays},
		{"Generated At", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Expired", counts[inventory.ExpiryStatusExpired]},
		{"Expiring", counts[inventory.ExpiryStatusExpiring]},
		{"Missing Expiry", counts[inventory.ExpiryStatusMissing]},
		{"OK", counts[inventory.ExpiryStatusOK]},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}

var _ appinv.ReportRenderer = (*ExpiryWorkbook)(nil)
