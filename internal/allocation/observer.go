package allocation

import "github.com/CFabianPBB/budget-allocation-app/internal/models"

// ChunkOutcome describes how one chunk of a department was allocated.
type ChunkOutcome struct {
	Index    int
	Count    int
	Programs int
	Budget   float64
	Source   models.AllocationSource
	Err      error
}

// Summary aggregates one pipeline run.
type Summary struct {
	Departments    int     `json:"departments"`
	Programs       int     `json:"programs"`
	Chunks         int     `json:"chunks"`
	OracleChunks   int     `json:"oracle_chunks"`
	FallbackChunks int     `json:"fallback_chunks"`
	TotalBudget    float64 `json:"total_budget"`
}

// Observer receives progress while a run is in flight. Calls happen on the
// run's goroutine in processing order.
type Observer interface {
	DepartmentStarted(department string, budget float64, programs, chunks int)
	ChunkAllocated(department string, outcome ChunkOutcome)
	DepartmentCompleted(department string, rows []models.AllocationResult)
	RunCompleted(summary Summary)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) DepartmentStarted(string, float64, int, int) {}
func (NopObserver) ChunkAllocated(string, ChunkOutcome) {}
func (NopObserver) DepartmentCompleted(string, []models.AllocationResult) {}
func (NopObserver) RunCompleted(Summary) {}
