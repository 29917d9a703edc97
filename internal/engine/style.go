package engine

import "github.com/jabez4jc/openalgo-gsheets/internal/sheet"

// StyleFor maps the trend onto the row background: a strict increase is
// highlighted green, a strict decrease red, everything else stays neutral.
func StyleFor(trend Trend) sheet.Style {
	switch trend {
	case TrendUp:
		return sheet.StylePositive
	case TrendDown:
		return sheet.StyleNegative
	default:
		return sheet.StyleNeutral
	}
}
