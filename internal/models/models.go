// Package models defines the records that flow through a budget allocation run.
//
// Records are read once per run from the uploaded spreadsheets and held in
// memory only for the duration of that run.
package models

// Program is one budget line item belonging to exactly one department.
type Program struct {
	Department  string `json:"department"`
	Program     string `json:"program"`
	Description string `json:"description,omitempty"`
}

// DepartmentBudget is the total amount a department has to split across its
// programs.
type DepartmentBudget struct {
	Department string  `json:"department"`
	Budget     float64 `json:"budget"`
}

// AllocationSource records which path produced a chunk's allocation.
type AllocationSource string

const (
	SourceOracle   AllocationSource = "oracle"
	SourceFallback AllocationSource = "fallback"
)

// AllocationResult is one output row. Description is always the full,
// unshortened description from the inventory.
type AllocationResult struct {
	Department  string  `json:"department"`
	Program     string  `json:"program"`
	Description string  `json:"description,omitempty"`
	TotalCost   float64 `json:"total_cost"`
}

// ResultFor returns a zero-cost result row carrying the program's identity.
func ResultFor(p Program) AllocationResult {
	return AllocationResult{
		Department:  p.Department,
		Program:     p.Program,
		Description: p.Description,
	}
}
