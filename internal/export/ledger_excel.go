// Package export renders the delivery ledger as an Excel workbook for
// compliance review.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"wisefido-escalation/internal/models"

	"github.com/xuri/excelize/v2"
)

// LedgerHeader 审计导出表头
var LedgerHeader = []string{
	"Attempt ID",
	"Alert ID",
	"Recipient ID",
	"Channel",
	"Attempt Number",
	"Status",
	"Provider Message ID",
	"Error",
	"Attempted At",
}

// AttemptLister is the ledger read surface the exporter needs.
type AttemptLister interface {
	ListByTimeRange(ctx context.Context, tenantID string, start, end time.Time) ([]models.DeliveryAttempt, error)
}

// LedgerExporter 投递台账导出器
type LedgerExporter struct {
	attempts AttemptLister
}

// NewLedgerExporter 创建导出器
func NewLedgerExporter(attempts AttemptLister) *LedgerExporter {
	return &LedgerExporter{attempts: attempts}
}

// Export renders every delivery attempt in [start, end) for the tenant as an
// xlsx workbook. An empty range still produces a workbook with the header
// row, so a scheduled export with no alerts is distinguishable from a broken
// one.
func (e *LedgerExporter) Export(ctx context.Context, tenantID string, start, end time.Time) ([]byte, error) {
	attempts, err := e.attempts.ListByTimeRange(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return renderLedgerExcel(attempts)
}

// renderLedgerExcel 生成 Excel 文件
func renderLedgerExcel(attempts []models.DeliveryAttempt) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Delivery Ledger"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range LedgerHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{
		38, // Attempt ID
		38, // Alert ID
		38, // Recipient ID
		10, // Channel
		15, // Attempt Number
		12, // Status
		25, // Provider Message ID
		40, // Error
		22, // Attempted At
	}
	for i := range LedgerHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, attempt := range attempts {
		row := rowIdx + 2
		values := []interface{}{
			attempt.AttemptID,
			attempt.AlertID,
			attempt.RecipientID,
			string(attempt.Channel),
			attempt.AttemptNumber,
			string(attempt.Status),
			strOrEmpty(attempt.ProviderMessageID),
			strOrEmpty(attempt.Error),
			attempt.AttemptedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}

	return buf.Bytes(), nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
