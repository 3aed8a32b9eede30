package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/spreadsheet"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAllocateOffline(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	dir := t.TempDir()
	programs := writeFile(t, dir, "inventory.csv",
		"Department,Program,Description\nParks,Trails,\nParks,Pools,\nParks,Playgrounds,\n")
	budgets := writeFile(t, dir, "budgets.csv", "Department,Budget\nParks,\"$90,000\"\n")
	out := filepath.Join(dir, "out", "result.xlsx")

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"--programs", programs,
		"--budgets", budgets,
		"--out", out,
		"--chunk-size", "2",
		"--offline",
	})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "3 programs in 1 departments")
	assert.Contains(t, stdout.String(), "chunks: 0 oracle, 2 fallback")

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(spreadsheet.ResultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestAllocateReadsFlagsFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	dir := t.TempDir()
	t.Setenv("ALLOCATE_PROGRAMS", writeFile(t, dir, "inventory.csv", "Department,Program\nFire,Engines\n"))
	t.Setenv("ALLOCATE_BUDGETS", writeFile(t, dir, "budgets.csv", "Department,Budget\nFire,10\n"))
	t.Setenv("ALLOCATE_OUT", filepath.Join(dir, "env.xlsx"))
	t.Setenv("ALLOCATE_OFFLINE", "true")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, "env.xlsx"))
	require.NoError(t, err)
}

func TestAllocateRequiresInputs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--programs", "only.csv"})
	require.Error(t, cmd.Execute())
}

func TestAllocateReportsInputErrors(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--programs", writeFile(t, dir, "inventory.csv", "Department,Program\nParks,Trails\n"),
		"--budgets", writeFile(t, dir, "budgets.csv", "Department,Budget\nFire,10\n"),
		"--out", filepath.Join(dir, "out.xlsx"),
		"--offline",
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, allocation.IsInputError(err))
}
