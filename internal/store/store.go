// Package store keeps the workbook produced by the most recent allocation run.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
	"github.com/CFabianPBB/budget-allocation-app/internal/spreadsheet"
)

// ResultFileName is the name the result workbook is stored and served under.
const ResultFileName = "Program_Costs_Output.xlsx"

var (
	// ErrNotFound is returned when no result workbook has been produced yet.
	ErrNotFound = errors.New("no allocation result available")
)

// Result describes a stored workbook.
type Result struct {
	RunID     string
	Path      string
	Rows      int
	CreatedAt time.Time
}

// ResultStore writes result workbooks into a directory. Only the latest
// result is kept; each save replaces the previous file atomically.
type ResultStore struct {
	dir string

	mu     sync.RWMutex
	latest *Result
}

func NewResultStore(dir string) (*ResultStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("result directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	return &ResultStore{dir: dir}, nil
}

// Path returns where the result workbook lives.
func (s *ResultStore) Path() string {
	return filepath.Join(s.dir, ResultFileName)
}

// Save writes rows as the new latest result.
func (s *ResultStore) Save(runID string, rows []models.AllocationResult) (Result, error) {
	tmp, err := os.CreateTemp(s.dir, ".result-*.xlsx")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp workbook: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := spreadsheet.WriteAllocations(tmp, rows); err != nil {
		_ = tmp.Close()
		return Result{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("failed to flush workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to close workbook: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return Result{}, fmt.Errorf("failed to publish workbook: %w", err)
	}
	result := Result{
		RunID:     runID,
		Path:      s.Path(),
		Rows:      len(rows),
		CreatedAt: time.Now().UTC(),
	}
	s.latest = &result
	return result, nil
}

// Latest returns the most recent result. A workbook left in the directory
// by an earlier process is reported without a run id.
func (s *ResultStore) Latest() (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest != nil {
		return *s.latest, nil
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("failed to stat result workbook: %w", err)
	}
	if info.IsDir() {
		return Result{}, ErrNotFound
	}
	return Result{Path: s.Path(), CreatedAt: info.ModTime().UTC()}, nil
}
