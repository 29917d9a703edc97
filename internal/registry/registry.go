package registry

import (
	"log"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

// Binding maps an instrument to the worksheet row it occupies.
type Binding struct {
	Key   market.Key `json:"key"`
	Sheet string     `json:"sheet"`
	Row   int        `json:"row"` // 1-based; row 1 is the header
}

// Table is the read-only binding table built once at startup.
type Table struct {
	bindings map[market.Key]Binding
	order    []market.Key
}

func New() *Table {
	return &Table{bindings: make(map[market.Key]Binding)}
}

// AddListing scans one worksheet listing and registers a binding per valid
// row. Rows are numbered from 2 (row 1 is the header); rows with an empty
// exchange or symbol are skipped silently. When expectExchange is non-empty
// only rows for that exchange are accepted. Duplicate keys keep the last
// binding seen, with a warning.
func (t *Table) AddListing(sheet string, rows [][]string, expectExchange string) int {
	added := 0
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 2 {
			continue
		}
		key := market.NewKey(row[0], row[1])
		if !key.Valid() {
			continue
		}
		if expectExchange != "" && key.Exchange != expectExchange {
			continue
		}
		if prev, ok := t.bindings[key]; ok {
			log.Printf("duplicate instrument %s: %s row %d replaces %s row %d",
				key, sheet, i+1, prev.Sheet, prev.Row)
		} else {
			t.order = append(t.order, key)
		}
		t.bindings[key] = Binding{Key: key, Sheet: sheet, Row: i + 1}
		added++
	}
	return added
}

// Resolve looks up the binding for a key.
func (t *Table) Resolve(key market.Key) (Binding, bool) {
	b, ok := t.bindings[key]
	return b, ok
}

// All returns the bindings in listing order.
func (t *Table) All() []Binding {
	out := make([]Binding, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.bindings[key])
	}
	return out
}

func (t *Table) Len() int {
	return len(t.bindings)
}
