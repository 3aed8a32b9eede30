package allocation

import "github.com/CFabianPBB/budget-allocation-app/internal/models"

// DefaultChunkSize is the largest number of programs sent in one oracle
// request.
const DefaultChunkSize = 10

// Chunk is a contiguous slice of a department's programs together with the
// share of the department budget it has to absorb.
type Chunk struct {
	Index    int
	Programs []models.Program
	Budget   float64
}

// SplitPrograms cuts programs into contiguous groups of at most size
// programs, preserving order. The last group may be shorter.
func SplitPrograms(programs []models.Program, size int) [][]models.Program {
	if size <= 0 {
		size = DefaultChunkSize
	}

	groups := make([][]models.Program, 0, (len(programs)+size-1)/size)
	for start := 0; start < len(programs); start += size {
		end := min(start+size, len(programs))
		groups = append(groups, programs[start:end:end])
	}
	return groups
}

// PlanChunks splits a department into chunks and gives each a budget share
// proportional to its length. A department that fits in one chunk keeps the
// whole budget unchanged. Otherwise shares are rounded to cents and the last
// chunk absorbs the rounding residual, so the shares sum to budget exactly.
func PlanChunks(programs []models.Program, budget float64, size int) []Chunk {
	groups := SplitPrograms(programs, size)
	if len(groups) == 0 {
		return nil
	}
	if len(groups) == 1 {
		return []Chunk{{Index: 0, Programs: groups[0], Budget: budget}}
	}

	chunks := make([]Chunk, len(groups))
	assigned := 0.0
	for i, group := range groups {
		share := roundCents(float64(len(group)) / float64(len(programs)) * budget)
		if i == len(groups)-1 {
			share = roundCents(budget - assigned)
		}
		assigned += share
		chunks[i] = Chunk{Index: i, Programs: group, Budget: share}
	}
	return chunks
}
