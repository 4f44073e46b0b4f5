// Package finance holds the loan computations behind the advisor and
// refinance tools. Functions are pure: they take records and return
// structured results, and rendering to text is a separate step.
package finance

import (
	"math"
	"strconv"
	"strings"
)

// Money formats v as dollars with thousands separators and two decimals,
// e.g. 182000 → "$182,000.00".
func Money(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	// Amounts that round to zero carry no sign.
	neg := v < 0 && s != "0.00"
	whole, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('.')
	sb.WriteString(frac)
	return sb.String()
}

// Percent formats a rate without trailing zeros, e.g. 6.5 → "6.5%".
func Percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
