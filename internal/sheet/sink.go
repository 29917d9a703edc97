package sheet

import (
	"context"
	"fmt"
	"strings"
)

// Style is the row background directive computed by the presentation policy.
type Style string

const (
	StylePositive Style = "positive"
	StyleNegative Style = "negative"
	StyleNeutral  Style = "neutral"
)

// Sink is a tabular destination for dashboard rows. Ranges use A1 notation
// within a named worksheet ("C7:K7", "K7"), matching how the sheet backends
// address cells.
type Sink interface {
	// ReadAllRows returns every populated row of the worksheet in order,
	// each row as its string cells. Used once at startup to build bindings.
	ReadAllRows(ctx context.Context, sheet string) ([][]string, error)
	// WriteRange writes one row of values into the given single-row range.
	WriteRange(ctx context.Context, sheet, rng string, values []any) error
	// WriteFormula writes a formula into a single cell.
	WriteFormula(ctx context.Context, sheet, cell, formula string) error
	// ApplyStyle sets the background style across the given single-row range.
	ApplyStyle(ctx context.Context, sheet, rng string, style Style) error
	Close() error
}

// span describes a parsed single-row A1 range.
type span struct {
	Row      int // 1-based
	StartCol int // 0-based
	EndCol   int // 0-based inclusive
}

func parseSpan(rng string) (span, error) {
	first, rest, _ := strings.Cut(rng, ":")
	col, row, err := parseCell(first)
	if err != nil {
		return span{}, fmt.Errorf("parse range %q: %w", rng, err)
	}
	s := span{Row: row, StartCol: col, EndCol: col}
	if rest != "" {
		endCol, endRow, err := parseCell(rest)
		if err != nil {
			return span{}, fmt.Errorf("parse range %q: %w", rng, err)
		}
		if endRow != row {
			return span{}, fmt.Errorf("range %q spans multiple rows", rng)
		}
		s.EndCol = endCol
	}
	return s, nil
}

func parseCell(cell string) (col int, row int, err error) {
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A') + 1
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("invalid cell %q", cell)
	}
	for ; i < len(cell); i++ {
		if cell[i] < '0' || cell[i] > '9' {
			return 0, 0, fmt.Errorf("invalid cell %q", cell)
		}
		row = row*10 + int(cell[i]-'0')
	}
	return col - 1, row, nil
}
