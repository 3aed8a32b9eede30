package allocation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// RunInput holds the two record sets of one allocation run.
type RunInput struct {
	Programs []models.Program
	Budgets  []models.DepartmentBudget
	Observer Observer
}

// RunResult is the flat, department-ordered output of a run.
type RunResult struct {
	Rows        []models.AllocationResult
	Departments []DepartmentAllocation
	Summary     Summary
}

// Pipeline groups programs by department and allocates each department in
// order of first appearance in the inventory.
type Pipeline struct {
	Orchestrator *Orchestrator
	logger       *zap.Logger
}

func NewPipeline(orchestrator *Orchestrator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Orchestrator: orchestrator, logger: logger}
}

type departmentGroup struct {
	name     string
	budget   float64
	programs []models.Program
}

// Run validates the input and allocates every department that has at least
// one program. Input errors abort the run before any oracle call is made.
func (p *Pipeline) Run(ctx context.Context, input RunInput) (RunResult, error) {
	if p == nil || p.Orchestrator == nil {
		return RunResult{}, fmt.Errorf("allocation pipeline is not configured")
	}
	observer := input.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	groups, err := groupByDepartment(input.Programs, input.Budgets)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		Rows:        make([]models.AllocationResult, 0, len(input.Programs)),
		Departments: make([]DepartmentAllocation, 0, len(groups)),
	}
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return RunResult{}, fmt.Errorf("allocation run interrupted: %w", err)
		}

		department := p.Orchestrator.AllocateDepartment(ctx, group.name, group.programs, group.budget, observer)
		result.Rows = append(result.Rows, department.Rows...)
		result.Departments = append(result.Departments, department)
		result.Summary = result.Summary.add(department)
	}

	p.logger.Info("allocation run completed",
		zap.Int("departments", result.Summary.Departments),
		zap.Int("programs", result.Summary.Programs),
		zap.Int("oracle_chunks", result.Summary.OracleChunks),
		zap.Int("fallback_chunks", result.Summary.FallbackChunks),
	)
	observer.RunCompleted(result.Summary)
	return result, nil
}

func (s Summary) add(department DepartmentAllocation) Summary {
	s.Departments += 1
	s.Programs += len(department.Rows)
	s.TotalBudget += department.Budget
	for _, chunk := range department.Chunks {
		s.Chunks += 1
		if chunk.Source == models.SourceOracle {
			s.OracleChunks += 1
		} else {
			s.FallbackChunks += 1
		}
	}
	return s
}

func groupByDepartment(programs []models.Program, budgets []models.DepartmentBudget) ([]departmentGroup, error) {
	budgetByDepartment := make(map[string]float64, len(budgets))
	for _, entry := range budgets {
		name := strings.TrimSpace(entry.Department)
		if name == "" {
			return nil, &InputError{Message: "budget entry has no department"}
		}
		if math.IsNaN(entry.Budget) || math.IsInf(entry.Budget, 0) || entry.Budget < 0 {
			return nil, &InputError{Department: name, Message: fmt.Sprintf("budget %v must be a non-negative amount", entry.Budget)}
		}
		budgetByDepartment[name] = entry.Budget
	}

	var groups []departmentGroup
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	for _, program := range programs {
		department := strings.TrimSpace(program.Department)
		if department == "" {
			return nil, &InputError{Message: fmt.Sprintf("program %q has no department", program.Program)}
		}
		if strings.TrimSpace(program.Program) == "" {
			return nil, &InputError{Department: department, Message: "program has no name"}
		}

		position, ok := index[department]
		if !ok {
			budget, hasBudget := budgetByDepartment[department]
			if !hasBudget {
				return nil, &InputError{Department: department, Message: "no budget entry for department"}
			}
			position = len(groups)
			index[department] = position
			groups = append(groups, departmentGroup{name: department, budget: budget})
			seen[department] = make(map[string]struct{})
		}

		if _, duplicate := seen[department][program.Program]; duplicate {
			return nil, &InputError{Department: department, Message: fmt.Sprintf("program %q is listed more than once", program.Program)}
		}
		seen[department][program.Program] = struct{}{}
		groups[position].programs = append(groups[position].programs, program)
	}
	return groups, nil
}
