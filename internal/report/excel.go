package report

import (
	"fmt"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/fiscion/fiscion/internal/tax"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ExcelExporter writes an accountant-facing expense report workbook: one row
// per invoice plus the period's tax summary.
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

var columns = []string{"Fecha", "Proveedor", "RUC", "No. Factura", "Subtotal", "IVA", "Total", "Moneda", "Deducible", "Revisar"}

// Export builds the workbook and saves it to outputPath.
func (e *ExcelExporter) Export(invoices []models.Invoice, ruleset *models.CountryRuleset, outputPath string) error {
	e.logger.Info("Exporting expense report",
		zap.String("country", ruleset.Code),
		zap.Int("invoices", len(invoices)),
		zap.String("output", outputPath))

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	for col, header := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, inv := range invoices {
		row := i + 2
		values := []interface{}{
			inv.InvoiceDate,
			inv.VendorName,
			inv.VendorTaxID,
			inv.InvoiceNumber,
			inv.SubtotalAmount,
			inv.TaxAmount,
			inv.TotalAmount,
			inv.Currency,
			string(inv.Deductible),
			boolMark(inv.NeedsReview),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write invoice row: %w", err)
			}
		}
	}

	summary := tax.Summarize(invoices, ruleset)
	summaryRow := len(invoices) + 3

	summaryCells := [][2]interface{}{
		{"Gastos Totales", summary.TotalExpenses},
		{fmt.Sprintf("%s Recuperable", ruleset.VATName), summary.VATRecoverable},
		{fmt.Sprintf("Deduccion Estimada (%.0f%%)", ruleset.DeductionPercentage), summary.TaxDeduction},
		{"Facturas por Revisar", summary.NeedsReview},
	}
	for i, pair := range summaryCells {
		labelCell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		valueCell, _ := excelize.CoordinatesToCellName(2, summaryRow+i)
		if err := f.SetCellValue(sheet, labelCell, pair[0]); err != nil {
			return fmt.Errorf("failed to write summary label: %w", err)
		}
		if err := f.SetCellValue(sheet, valueCell, pair[1]); err != nil {
			return fmt.Errorf("failed to write summary value: %w", err)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	e.logger.Info("Expense report exported", zap.String("output", outputPath))
	return nil
}

func boolMark(b bool) string {
	if b {
		return "SI"
	}
	return ""
}
