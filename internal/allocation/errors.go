package allocation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDegenerateAllocation is returned when an allocation cannot be scaled
	// to a target because its amounts sum to zero or to a non-finite value.
	ErrDegenerateAllocation = errors.New("allocation sums to zero or non-finite value")
	// ErrMalformedResponse is returned when oracle output does not match the
	// expected response shape.
	ErrMalformedResponse = errors.New("oracle returned malformed allocation")
	// ErrOracleUnavailable is returned when the oracle call itself fails or no
	// oracle is configured.
	ErrOracleUnavailable = errors.New("allocation oracle unavailable")
)

// InputError is a fatal validation failure in the records supplied to a run.
type InputError struct {
	Department string
	Row        int
	Message    string
}

func (e *InputError) Error() string {
	var parts []string
	if e.Row > 0 {
		parts = append(parts, fmt.Sprintf("row %d", e.Row))
	}
	if strings.TrimSpace(e.Department) != "" {
		parts = append(parts, fmt.Sprintf("department %q", e.Department))
	}
	if len(parts) == 0 {
		return e.Message
	}
	return strings.Join(parts, ", ") + ": " + e.Message
}

// IsInputError reports whether err wraps an *InputError.
func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}
