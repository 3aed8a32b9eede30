package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount parses a monetary amount that may carry a currency sign,
// thousands separators or surrounding spaces, e.g. "$1,250,000.50".
func ParseAmount(raw string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("amount %q is not finite", raw)
	}
	return amount, nil
}
