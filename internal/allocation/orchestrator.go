package allocation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// DepartmentAllocation is the full result for one department.
type DepartmentAllocation struct {
	Department string
	Budget     float64
	Rows       []models.AllocationResult
	Chunks     []ChunkOutcome
}

// Orchestrator allocates one department at a time, chunk by chunk, falling
// back to Distribute whenever a chunk cannot be allocated by the oracle.
type Orchestrator struct {
	Client    *Client
	ChunkSize int
	logger    *zap.Logger
}

func NewOrchestrator(client *Client, chunkSize int, logger *zap.Logger) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Client:    client,
		ChunkSize: chunkSize,
		logger:    logger,
	}
}

// AllocateDepartment returns one row per program, in chunk order, summing to
// budget to the cent. Chunks are processed sequentially; a failing chunk
// falls back on its own without affecting its siblings.
func (o *Orchestrator) AllocateDepartment(
	ctx context.Context,
	department string,
	programs []models.Program,
	budget float64,
	observer Observer,
) (result DepartmentAllocation) {
	if observer == nil {
		observer = NopObserver{}
	}

	// A panic outside a single chunk discards partial work and falls back
	// for the whole department.
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("allocate department %s: panic: %v", department, recovered)
			o.logger.Error("department allocation failed, using deterministic fallback",
				zap.String("department", department),
				zap.Error(err),
			)
			result = DepartmentAllocation{
				Department: department,
				Budget:     budget,
				Rows:       Distribute(programs, budget),
				Chunks: []ChunkOutcome{{
					Count:    1,
					Programs: len(programs),
					Budget:   budget,
					Source:   models.SourceFallback,
					Err:      err,
				}},
			}
		}
	}()

	chunks := PlanChunks(programs, budget, o.ChunkSize)
	observer.DepartmentStarted(department, budget, len(programs), len(chunks))
	o.logger.Info("allocating department",
		zap.String("department", department),
		zap.Float64("budget", budget),
		zap.Int("programs", len(programs)),
		zap.Int("chunks", len(chunks)),
	)

	result = DepartmentAllocation{
		Department: department,
		Budget:     budget,
		Rows:       make([]models.AllocationResult, 0, len(programs)),
		Chunks:     make([]ChunkOutcome, 0, len(chunks)),
	}
	for _, chunk := range chunks {
		rows, outcome := o.allocateChunk(ctx, department, chunk)
		outcome.Count = len(chunks)

		logFields := []zap.Field{
			zap.String("department", department),
			zap.Int("chunk", chunk.Index+1),
			zap.Int("chunks", len(chunks)),
			zap.Int("programs", len(chunk.Programs)),
			zap.Float64("budget", chunk.Budget),
			zap.String("source", string(outcome.Source)),
		}
		if outcome.Err != nil {
			o.logger.Warn("oracle allocation failed, using deterministic fallback",
				append(logFields, zap.Error(outcome.Err))...)
		} else {
			o.logger.Debug("chunk allocated", logFields...)
		}

		observer.ChunkAllocated(department, outcome)
		result.Rows = append(result.Rows, rows...)
		result.Chunks = append(result.Chunks, outcome)
	}

	if len(chunks) > 1 {
		settleResidual(result.Rows, budget)
	}

	observer.DepartmentCompleted(department, result.Rows)
	return result
}

func (o *Orchestrator) allocateChunk(
	ctx context.Context,
	department string,
	chunk Chunk,
) (rows []models.AllocationResult, outcome ChunkOutcome) {
	outcome = ChunkOutcome{
		Index:    chunk.Index,
		Programs: len(chunk.Programs),
		Budget:   chunk.Budget,
		Source:   models.SourceOracle,
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			rows = Distribute(chunk.Programs, chunk.Budget)
			outcome.Source = models.SourceFallback
			outcome.Err = fmt.Errorf("allocate chunk %d of %s: panic: %v", chunk.Index+1, department, recovered)
		}
	}()

	allocated, err := o.Client.RequestAllocation(ctx, department, chunk.Programs, chunk.Budget)
	if err == nil && len(allocated) != len(chunk.Programs) {
		err = fmt.Errorf("oracle returned %d rows for %d programs", len(allocated), len(chunk.Programs))
	}
	if err != nil {
		outcome.Source = models.SourceFallback
		outcome.Err = err
		return Distribute(chunk.Programs, chunk.Budget), outcome
	}
	return allocated, outcome
}
