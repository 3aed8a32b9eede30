package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// echoOracle gives each program in the prompt an increasing allocation.
func echoOracle() *scriptedOracle {
	return &scriptedOracle{respond: func(_ int, req OracleRequest) (OracleResponse, error) {
		var entries []allocationEntry
		for i, name := range programNamesInPrompt(req.Prompt) {
			entries = append(entries, allocationEntry{Name: name, Amount: float64(1000 * (i + 1))})
		}
		return OracleResponse{Text: allocationJSON(entries...)}, nil
	}}
}

func failingOracle() *scriptedOracle {
	return &scriptedOracle{respond: func(int, OracleRequest) (OracleResponse, error) {
		return OracleResponse{Text: "not json at all"}, nil
	}}
}

func newTestOrchestrator(t *testing.T, oracle Oracle) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewOrchestrator(NewClient(oracle, DefaultClientConfig(), logger), DefaultChunkSize, logger)
}

func requireCoverage(t *testing.T, programs []models.Program, rows []models.AllocationResult) {
	t.Helper()
	require.Len(t, rows, len(programs))
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Department+"/"+row.Program] += 1
	}
	for _, program := range programs {
		key := program.Department + "/" + program.Program
		require.Equal(t, 1, counts[key], "program %s must appear exactly once", key)
	}
}

func TestAllocateDepartmentFallbackMatchesDistribute(t *testing.T) {
	programs := makePrograms("Parks", 7)
	orchestrator := newTestOrchestrator(t, failingOracle())

	result := orchestrator.AllocateDepartment(context.Background(), "Parks", programs, 50000, nil)

	if diff := cmp.Diff(Distribute(programs, 50000), result.Rows); diff != "" {
		t.Fatalf("fallback rows differ from Distribute (-want +got):\n%s", diff)
	}
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, models.SourceFallback, result.Chunks[0].Source)
	assert.True(t, errors.Is(result.Chunks[0].Err, ErrMalformedResponse))
}

func TestAllocateDepartmentChunkBoundary(t *testing.T) {
	oracle := echoOracle()
	orchestrator := newTestOrchestrator(t, oracle)

	result := orchestrator.AllocateDepartment(context.Background(), "Parks", makePrograms("Parks", 10), 1000, nil)
	assert.Equal(t, 1, oracle.calls())
	assert.Len(t, result.Chunks, 1)

	oracle = echoOracle()
	orchestrator = newTestOrchestrator(t, oracle)
	result = orchestrator.AllocateDepartment(context.Background(), "Parks", makePrograms("Parks", 11), 1000, nil)
	assert.Equal(t, 2, oracle.calls())
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 10, result.Chunks[0].Programs)
	assert.Equal(t, 1, result.Chunks[1].Programs)
}

func TestAllocateDepartmentChunksFallBackIndependently(t *testing.T) {
	programs := makePrograms("Parks", 12)
	succeeding := echoOracle()
	oracle := &scriptedOracle{respond: func(call int, req OracleRequest) (OracleResponse, error) {
		if call == 0 {
			return OracleResponse{}, errors.New("connection reset")
		}
		return succeeding.respond(call, req)
	}}
	orchestrator := newTestOrchestrator(t, oracle)

	result := orchestrator.AllocateDepartment(context.Background(), "Parks", programs, 50000, nil)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, models.SourceFallback, result.Chunks[0].Source)
	assert.True(t, errors.Is(result.Chunks[0].Err, ErrOracleUnavailable))
	assert.Equal(t, models.SourceOracle, result.Chunks[1].Source)
	assert.NoError(t, result.Chunks[1].Err)

	if diff := cmp.Diff(Distribute(programs[:10], 41666.67), result.Rows[:10]); diff != "" {
		t.Fatalf("first chunk should be the deterministic split (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Program 11", result.Rows[10].Program)
	assert.Equal(t, 2777.78, result.Rows[10].TotalCost)
	assert.Equal(t, "Program 12", result.Rows[11].Program)
	assert.Equal(t, 5555.55, result.Rows[11].TotalCost)
	requireCoverage(t, programs, result.Rows)
	requireExactSum(t, result.Rows, 50000)
}

func TestAllocateDepartmentRecoversFromPanics(t *testing.T) {
	programs := makePrograms("Parks", 4)
	oracle := &scriptedOracle{respond: func(int, OracleRequest) (OracleResponse, error) {
		panic("oracle exploded")
	}}
	orchestrator := newTestOrchestrator(t, oracle)

	var result DepartmentAllocation
	require.NotPanics(t, func() {
		result = orchestrator.AllocateDepartment(context.Background(), "Parks", programs, 900, nil)
	})

	assert.Equal(t, models.SourceFallback, result.Chunks[0].Source)
	assert.ErrorContains(t, result.Chunks[0].Err, "oracle exploded")
	if diff := cmp.Diff(Distribute(programs, 900), result.Rows); diff != "" {
		t.Fatalf("panic fallback differs from Distribute (-want +got):\n%s", diff)
	}
}

func TestAllocateDepartmentWithoutClientFallsBack(t *testing.T) {
	var nilClient *Client
	orchestrator := NewOrchestrator(nilClient, DefaultChunkSize, nil)

	result := orchestrator.AllocateDepartment(context.Background(), "Parks", makePrograms("Parks", 3), 300, nil)

	assert.Equal(t, models.SourceFallback, result.Chunks[0].Source)
	requireExactSum(t, result.Rows, 300)
}

// Chunk budgets are rounded to cents and the department is settled after
// reassembly, so departments are exact even when split across chunks.
func TestAllocateDepartmentExactAcrossChunks(t *testing.T) {
	for _, count := range []int{11, 19, 23, 37, 64} {
		for _, budget := range []float64{50000, 1000.01, 333333.33, 7} {
			programs := makePrograms("Transit", count)

			fallback := newTestOrchestrator(t, failingOracle()).
				AllocateDepartment(context.Background(), "Transit", programs, budget, nil)
			requireCoverage(t, programs, fallback.Rows)
			requireExactSum(t, fallback.Rows, budget)

			oracle := newTestOrchestrator(t, echoOracle()).
				AllocateDepartment(context.Background(), "Transit", programs, budget, nil)
			requireCoverage(t, programs, oracle.Rows)
			requireExactSum(t, oracle.Rows, budget)
		}
	}
}

type recordingObserver struct {
	NopObserver
	started   []string
	chunks    []ChunkOutcome
	completed []string
	summaries []Summary
}

func (r *recordingObserver) DepartmentStarted(department string, _ float64, _, _ int) {
	r.started = append(r.started, department)
}

func (r *recordingObserver) ChunkAllocated(_ string, outcome ChunkOutcome) {
	r.chunks = append(r.chunks, outcome)
}

func (r *recordingObserver) DepartmentCompleted(department string, _ []models.AllocationResult) {
	r.completed = append(r.completed, department)
}

func (r *recordingObserver) RunCompleted(summary Summary) {
	r.summaries = append(r.summaries, summary)
}

func TestAllocateDepartmentNotifiesObserver(t *testing.T) {
	observer := &recordingObserver{}
	orchestrator := newTestOrchestrator(t, echoOracle())

	orchestrator.AllocateDepartment(context.Background(), "Parks", makePrograms("Parks", 25), 1000, observer)

	assert.Equal(t, []string{"Parks"}, observer.started)
	assert.Equal(t, []string{"Parks"}, observer.completed)
	require.Len(t, observer.chunks, 3)
	for i, chunk := range observer.chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, 3, chunk.Count)
		assert.Equal(t, models.SourceOracle, chunk.Source)
	}
}

type panickingObserver struct {
	NopObserver
}

func (panickingObserver) ChunkAllocated(string, ChunkOutcome) {
	panic("observer exploded")
}

func TestAllocateDepartmentFallsBackWholeDepartmentOnPanic(t *testing.T) {
	programs := makePrograms("Parks", 15)
	orchestrator := newTestOrchestrator(t, echoOracle())

	var result DepartmentAllocation
	require.NotPanics(t, func() {
		result = orchestrator.AllocateDepartment(context.Background(), "Parks", programs, 50000, panickingObserver{})
	})

	if diff := cmp.Diff(Distribute(programs, 50000), result.Rows); diff != "" {
		t.Fatalf("department fallback differs from Distribute (-want +got):\n%s", diff)
	}
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, models.SourceFallback, result.Chunks[0].Source)
	assert.ErrorContains(t, result.Chunks[0].Err, "observer exploded")
}
