// Package spreadsheet reads program inventories and department budgets from
// xlsx or csv uploads and writes allocation results as an xlsx workbook.
package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

const (
	ColumnDepartment  = "Department"
	ColumnProgram     = "Program"
	ColumnDescription = "Description"
	ColumnBudget      = "Budget"
	ColumnTotalCost   = "Total Cost"
)

// ReadPrograms parses a program inventory. The filename only selects the
// format: ".csv" is read as CSV, anything else as an xlsx workbook.
func ReadPrograms(r io.Reader, filename string) ([]models.Program, error) {
	sheet, err := readSheet(r, filename)
	if err != nil {
		return nil, err
	}
	columns, err := sheet.require(ColumnDepartment, ColumnProgram)
	if err != nil {
		return nil, err
	}
	description := sheet.column(ColumnDescription)

	programs := make([]models.Program, 0, len(sheet.rows))
	for _, row := range sheet.rows {
		program := models.Program{
			Department:  row.cell(columns[0]),
			Program:     row.cell(columns[1]),
			Description: row.cell(description),
		}
		if program.Department == "" {
			return nil, &allocation.InputError{Row: row.number, Message: "program inventory: Department is empty"}
		}
		if program.Program == "" {
			return nil, &allocation.InputError{
				Row:        row.number,
				Department: program.Department,
				Message:    "program inventory: Program is empty",
			}
		}
		programs = append(programs, program)
	}
	return programs, nil
}

// ReadBudgets parses a department budget sheet.
func ReadBudgets(r io.Reader, filename string) ([]models.DepartmentBudget, error) {
	sheet, err := readSheet(r, filename)
	if err != nil {
		return nil, err
	}
	columns, err := sheet.require(ColumnDepartment, ColumnBudget)
	if err != nil {
		return nil, err
	}

	budgets := make([]models.DepartmentBudget, 0, len(sheet.rows))
	for _, row := range sheet.rows {
		department := row.cell(columns[0])
		if department == "" {
			return nil, &allocation.InputError{Row: row.number, Message: "department budget: Department is empty"}
		}
		amount, err := models.ParseAmount(row.cell(columns[1]))
		if err != nil {
			return nil, &allocation.InputError{
				Row:        row.number,
				Department: department,
				Message:    "department budget: " + err.Error(),
			}
		}
		if amount < 0 {
			return nil, &allocation.InputError{
				Row:        row.number,
				Department: department,
				Message:    "department budget: Budget must not be negative",
			}
		}
		budgets = append(budgets, models.DepartmentBudget{Department: department, Budget: amount})
	}
	return budgets, nil
}

type sheetRow struct {
	// number is the 1-based row in the source sheet, header included.
	number int
	cells  []string
}

func (r sheetRow) cell(index int) string {
	if index < 0 || index >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[index])
}

type sheet struct {
	header map[string]int
	rows   []sheetRow
}

func (s sheet) column(name string) int {
	if index, ok := s.header[normalizeHeader(name)]; ok {
		return index
	}
	return -1
}

func (s sheet) require(names ...string) ([]int, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		indexes[i] = s.column(name)
		if indexes[i] < 0 {
			return nil, &allocation.InputError{Message: fmt.Sprintf("missing required column %q", name)}
		}
	}
	return indexes, nil
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func readSheet(r io.Reader, filename string) (sheet, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		records, lines, err = readCSV(r)
	} else {
		records, err = readWorkbook(r)
	}
	if err != nil {
		return sheet{}, err
	}
	return buildSheet(records, lines)
}

// buildSheet locates the header and collects the data rows. lines holds the
// source line of each record; when nil, a record's position is its row.
func buildSheet(records [][]string, lines []int) (sheet, error) {
	headerIndex := -1
	for i, record := range records {
		if !blank(record) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return sheet{}, &allocation.InputError{Message: "sheet has no header row"}
	}

	out := sheet{header: make(map[string]int, len(records[headerIndex]))}
	for i, name := range records[headerIndex] {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, exists := out.header[key]; !exists {
			out.header[key] = i
		}
	}
	for i := headerIndex + 1; i < len(records); i++ {
		if blank(records[i]) {
			continue
		}
		number := i + 1
		if lines != nil {
			number = lines[i]
		}
		out.rows = append(out.rows, sheetRow{number: number, cells: records[i]})
	}
	return out, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// readCSV returns the records and the line each one starts on. The csv
// reader drops empty lines, so positions alone would misnumber later rows.
func readCSV(r io.Reader) ([][]string, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &allocation.InputError{Message: fmt.Sprintf("invalid csv: %v", err)}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, lines, nil
}

// readWorkbook returns the rows of the first sheet with raw cell values, so
// numeric budgets are not rendered through the cell's display format.
func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &allocation.InputError{Message: fmt.Sprintf("invalid workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &allocation.InputError{Message: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &allocation.InputError{Message: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	return rows, nil
}
