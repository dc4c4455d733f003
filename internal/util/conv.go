package util

import (
	"math"
	"strings"
)

// NormalizeSelection collapses the values clients send for "nothing selected" to "".
func NormalizeSelection(optionID string) string {
	v := strings.TrimSpace(optionID)
	switch v {
	case "", "undefined", "null":
		return ""
	}
	return v
}

// ScorePercent is round(100 * correct / total); 0 when total is 0.
func ScorePercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}
