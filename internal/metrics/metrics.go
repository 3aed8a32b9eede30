// Package metrics keeps in-process counters for allocation runs.
package metrics

import (
	"strings"
	"sync"
	"time"
)

type RunMetrics struct {
	StartedTotal       int64 `json:"started_total"`
	SuccessTotal       int64 `json:"success_total"`
	RejectedTotal      int64 `json:"rejected_total"`
	FailureTotal       int64 `json:"failure_total"`
	TotalLatencyMillis int64 `json:"total_latency_millis"`
}

type DepartmentMetrics struct {
	Runs           int64   `json:"runs"`
	Programs       int64   `json:"programs"`
	OracleChunks   int64   `json:"oracle_chunks"`
	FallbackChunks int64   `json:"fallback_chunks"`
	TotalBudget    float64 `json:"total_budget"`
}

type OracleUsage struct {
	Calls        int   `json:"calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type Snapshot struct {
	Runs        RunMetrics                   `json:"runs"`
	Departments map[string]DepartmentMetrics `json:"departments"`
	Oracle      *OracleUsage                 `json:"oracle,omitempty"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

// UsageSource reports token usage of the oracle.
type UsageSource interface {
	Total() (input, output int64)
	Calls() int
}

// Registry accumulates run metrics. The zero value is not usable; call New.
type Registry struct {
	mu          sync.RWMutex
	runs        RunMetrics
	departments map[string]*DepartmentMetrics
	usage       UsageSource
}

// New returns an empty registry. usage may be nil when no oracle is wired.
func New(usage UsageSource) *Registry {
	return &Registry{
		departments: make(map[string]*DepartmentMetrics),
		usage:       usage,
	}
}

func (r *Registry) RecordRunStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs.StartedTotal++
}

func (r *Registry) RecordRunCompleted(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs.SuccessTotal++
	if latency > 0 {
		r.runs.TotalLatencyMillis += latency.Milliseconds()
	}
}

// RecordRunRejected counts a run that stopped on invalid input.
func (r *Registry) RecordRunRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs.RejectedTotal++
}

func (r *Registry) RecordRunFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs.FailureTotal++
}

// RecordDepartment adds one allocated department to the per-department totals.
func (r *Registry) RecordDepartment(department string, programs, oracleChunks, fallbackChunks int, budget float64) {
	key := normalizeKey(department)
	if key == "" {
		key = "unknown"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.departments[key]
	if !ok {
		metrics = &DepartmentMetrics{}
		r.departments[key] = metrics
	}
	metrics.Runs++
	metrics.Programs += int64(programs)
	metrics.OracleChunks += int64(oracleChunks)
	metrics.FallbackChunks += int64(fallbackChunks)
	metrics.TotalBudget += budget
}

func (r *Registry) SnapshotNow() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		Runs:        r.runs,
		Departments: make(map[string]DepartmentMetrics, len(r.departments)),
		GeneratedAt: time.Now().UTC(),
	}
	for key, metrics := range r.departments {
		snapshot.Departments[key] = *metrics
	}
	if r.usage != nil {
		input, output := r.usage.Total()
		snapshot.Oracle = &OracleUsage{
			Calls:        r.usage.Calls(),
			InputTokens:  input,
			OutputTokens: output,
		}
	}
	return snapshot
}

func normalizeKey(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw))
}
