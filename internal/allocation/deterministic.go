package allocation

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

// Distribute splits totalBudget across programs without consulting the
// oracle. The split is pseudo-random but fully determined by the program
// names, their sorted positions and the program count, so repeated calls
// with the same input produce identical rows. Rows come back sorted by
// program name and sum to totalBudget to the cent.
func Distribute(programs []models.Program, totalBudget float64) []models.AllocationResult {
	count := len(programs)
	if count == 0 {
		return nil
	}

	sorted := slices.Clone(programs)
	slices.SortStableFunc(sorted, func(a, b models.Program) int {
		return strings.Compare(a.Program, b.Program)
	})

	base := totalBudget / float64(count)
	rows := make([]models.AllocationResult, count)
	for i, program := range sorted {
		row := models.ResultFor(program)
		row.TotalCost = roundCents(base * variationFactor(program.Program, i, count))
		rows[i] = row
	}

	scaled, err := Renormalize(rows, totalBudget)
	if err != nil {
		// Only reachable when every raw amount is zero, i.e. a zero budget.
		for i := range rows {
			rows[i].TotalCost = 0
		}
		settleResidual(rows, totalBudget)
		return rows
	}
	return scaled
}

func variationFactor(name string, index, count int) float64 {
	seed := programSeed(name, index, count)
	terms := [...]float64{
		float64(seed%200-100) / 500,
		math.Sin(float64(seed)) * 0.03,
		float64(index)*0.01 - float64(count)/200,
		math.Cos(float64(index)) * 0.02,
	}

	total := 0.0
	for _, term := range terms {
		total += term
	}
	return 1 + total
}

// programSeed hashes "name-index-count" with the 31-multiplier rolling hash
// over UTF-16 code units, wrapping at 32 bits, and returns its magnitude.
func programSeed(name string, index, count int) int64 {
	key := name + "-" + strconv.Itoa(index) + "-" + strconv.Itoa(count)

	var hash int32
	for _, unit := range utf16.Encode([]rune(key)) {
		hash = hash*31 + int32(unit)
	}

	seed := int64(hash)
	if seed < 0 {
		seed = -seed
	}
	return seed
}
