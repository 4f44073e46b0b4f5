package prompts

import (
	"fmt"
	"strconv"
)

// refinanceOverrideTemplate is appended to refinance and restructure
// queries so the model passes the caller's figures to the refinance tool.
const refinanceOverrideTemplate = "\nPerform refinance analysis using DB values, but override with " +
	"user-provided values: rate=%s, score=%s, income=%s. " +
	"Use new offer column if present for better recommendation."

// RefinanceOverrides renders the override suffix. Absent values render
// as "none".
func RefinanceOverrides(rate *float64, score *int, income *float64) string {
	return fmt.Sprintf(refinanceOverrideTemplate, formatFloat(rate), formatInt(score), formatFloat(income))
}

func formatFloat(v *float64) string {
	if v == nil {
		return "none"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return "none"
	}
	return strconv.Itoa(*v)
}
