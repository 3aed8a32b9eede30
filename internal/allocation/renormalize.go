package allocation

import (
	"fmt"
	"math"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// roundCents rounds half up to two decimals.
func roundCents(amount float64) float64 {
	return math.Floor(amount*100+0.5) / 100
}

func sumCosts(rows []models.AllocationResult) float64 {
	total := 0.0
	for _, row := range rows {
		total += row.TotalCost
	}
	return total
}

// Renormalize rescales every amount by target/sum, rounds each to cents and
// gives the rounding residual to the last row. The input is not modified.
func Renormalize(rows []models.AllocationResult, target float64) ([]models.AllocationResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	current := sumCosts(rows)
	if current == 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		return nil, fmt.Errorf("%w: sum=%v", ErrDegenerateAllocation, current)
	}

	factor := target / current
	scaled := make([]models.AllocationResult, len(rows))
	for i, row := range rows {
		row.TotalCost = roundCents(row.TotalCost * factor)
		scaled[i] = row
	}
	settleResidual(scaled, target)
	return scaled, nil
}

// settleResidual adds target-sum to the last row in place.
func settleResidual(rows []models.AllocationResult, target float64) {
	if len(rows) == 0 {
		return
	}
	difference := target - sumCosts(rows)
	last := &rows[len(rows)-1]
	last.TotalCost = roundCents(last.TotalCost + difference)
}
