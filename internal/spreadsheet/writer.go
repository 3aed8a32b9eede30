package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// ResultSheet is the name of the sheet holding allocation rows.
const ResultSheet = "Programs"

// currencyFormat is the built-in "#,##0.00" number format.
const currencyFormat = 4

// WriteAllocations writes rows to w as an xlsx workbook with a single
// Programs sheet.
func WriteAllocations(w io.Writer, rows []models.AllocationResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{ColumnDepartment, ColumnProgram, ColumnDescription, ColumnTotalCost}
	if err := f.SetSheetRow(ResultSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Department, row.Program, row.Description, row.TotalCost}
		if err := f.SetSheetRow(ResultSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := styleResultSheet(f, len(rows)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func styleResultSheet(f *excelize.File, rowCount int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(ResultSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	if err := f.SetColWidth(ResultSheet, "A", "B", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(ResultSheet, "C", "C", 60); err != nil {
		return err
	}
	if err := f.SetColWidth(ResultSheet, "D", "D", 16); err != nil {
		return err
	}

	if rowCount == 0 {
		return nil
	}
	currency, err := f.NewStyle(&excelize.Style{NumFmt: currencyFormat})
	if err != nil {
		return fmt.Errorf("create currency style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(4, rowCount+1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ResultSheet, "D2", last, currency); err != nil {
		return fmt.Errorf("style totals: %w", err)
	}
	return nil
}
