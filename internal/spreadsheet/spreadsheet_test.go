package spreadsheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

func workbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &values))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func requireInputError(t *testing.T, err error) *allocation.InputError {
	t.Helper()
	require.Error(t, err)
	var inputErr *allocation.InputError
	require.True(t, errors.As(err, &inputErr), "expected InputError, got %v", err)
	return inputErr
}

func TestReadProgramsFromWorkbook(t *testing.T) {
	buf := workbook(t,
		[]interface{}{" program ", "DEPARTMENT", "Description", "Notes"},
		[]interface{}{"Trail Maintenance", "Parks", "Keeps trails open", "x"},
		[]interface{}{nil, nil, nil, nil},
		[]interface{}{"Engine Company", "Fire"},
	)

	programs, err := ReadPrograms(buf, "inventory.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []models.Program{
		{Department: "Parks", Program: "Trail Maintenance", Description: "Keeps trails open"},
		{Department: "Fire", Program: "Engine Company"},
	}, programs)
}

func TestReadProgramsFromCSV(t *testing.T) {
	input := "\ufeffDepartment,Program,Description\n" +
		"Parks,\"Trails, East\",Summer crews\n" +
		",,\n" +
		"Library,Outreach,\n"

	programs, err := ReadPrograms(strings.NewReader(input), "INVENTORY.CSV")
	require.NoError(t, err)

	require.Len(t, programs, 2)
	assert.Equal(t, "Trails, East", programs[0].Program)
	assert.Equal(t, "Library", programs[1].Department)
	assert.Empty(t, programs[1].Description)
}

func TestReadProgramsReportsSheetRow(t *testing.T) {
	input := "Department,Program\nParks,Trails\n\nParks,\n"

	_, err := ReadPrograms(strings.NewReader(input), "inventory.csv")
	inputErr := requireInputError(t, err)

	assert.Equal(t, 4, inputErr.Row)
	assert.Equal(t, "Parks", inputErr.Department)
}

func TestReadBudgetsReportsSourceLineInCSV(t *testing.T) {
	input := "\n\nDepartment,Budget\n\nParks,\"1,000\"\nFire,\"see\nnote\"\n\nLibrary,-5\n"

	_, err := ReadBudgets(strings.NewReader(input), "budgets.csv")
	inputErr := requireInputError(t, err)

	assert.Equal(t, 6, inputErr.Row)
	assert.Equal(t, "Fire", inputErr.Department)

	_, err = ReadBudgets(strings.NewReader("Department,Budget\n\n\nLibrary,-5\n"), "budgets.csv")
	inputErr = requireInputError(t, err)
	assert.Equal(t, 4, inputErr.Row)
}

func TestReadProgramsMissingColumn(t *testing.T) {
	_, err := ReadPrograms(strings.NewReader("Department,Name\nParks,Trails\n"), "inventory.csv")
	inputErr := requireInputError(t, err)
	assert.Contains(t, inputErr.Message, `"Program"`)
}

func TestReadProgramsRejectsGarbageWorkbook(t *testing.T) {
	_, err := ReadPrograms(strings.NewReader("definitely not a zip"), "inventory.xlsx")
	requireInputError(t, err)
}

func TestReadProgramsEmptySheet(t *testing.T) {
	_, err := ReadPrograms(strings.NewReader(""), "inventory.csv")
	requireInputError(t, err)
}

func TestReadBudgets(t *testing.T) {
	buf := workbook(t,
		[]interface{}{"Department", "Budget"},
		[]interface{}{"Parks", 50000},
		[]interface{}{"Fire", "$1,250,000.50"},
		[]interface{}{"Library", " 12 345 "},
	)

	budgets, err := ReadBudgets(buf, "budgets.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []models.DepartmentBudget{
		{Department: "Parks", Budget: 50000},
		{Department: "Fire", Budget: 1250000.50},
		{Department: "Library", Budget: 12345},
	}, budgets)
}

func TestReadBudgetsRejectsBadAmounts(t *testing.T) {
	cases := map[string]string{
		"negative":    "Department,Budget\nParks,-10\n",
		"non-numeric": "Department,Budget\nParks,lots\n",
		"empty":       "Department,Budget\nParks,\n",
		"unnamed":     "Department,Budget\n,10\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadBudgets(strings.NewReader(input), "budgets.csv")
			inputErr := requireInputError(t, err)
			assert.Equal(t, 2, inputErr.Row)
		})
	}
}

func TestWriteAllocations(t *testing.T) {
	rows := []models.AllocationResult{
		{Department: "Parks", Program: "Trails", Description: "Keeps trails open", TotalCost: 1250.5},
		{Department: "Parks", Program: "Pools", TotalCost: 48749.5},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAllocations(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultSheet}, f.GetSheetList())
	got, err := f.GetRows(ResultSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Department", "Program", "Description", "Total Cost"},
		{"Parks", "Trails", "Keeps trails open", "1250.5"},
		{"Parks", "Pools", "", "48749.5"},
	}, got)
}

func TestWriteAllocationsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAllocations(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(ResultSheet)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
