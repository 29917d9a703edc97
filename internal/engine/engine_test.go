package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"
	"github.com/jabez4jc/openalgo-gsheets/internal/sheet"
)

type writeCall struct {
	Sheet  string
	Range  string
	Values []any
}

type styleCall struct {
	Sheet string
	Range string
	Style sheet.Style
}

type fakeSink struct {
	mu         sync.Mutex
	writes     []writeCall
	formulas   []writeCall
	styles     []styleCall
	failWrites bool
}

func (f *fakeSink) ReadAllRows(ctx context.Context, sheetName string) ([][]string, error) {
	return nil, nil
}

func (f *fakeSink) WriteRange(ctx context.Context, sheetName, rng string, values []any) error {
	if f.failWrites {
		return errors.New("sink unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{Sheet: sheetName, Range: rng, Values: values})
	return nil
}

func (f *fakeSink) WriteFormula(ctx context.Context, sheetName, cell, formula string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formulas = append(f.formulas, writeCall{Sheet: sheetName, Range: cell, Values: []any{formula}})
	return nil
}

func (f *fakeSink) ApplyStyle(ctx context.Context, sheetName, rng string, style sheet.Style) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styles = append(f.styles, styleCall{Sheet: sheetName, Range: rng, Style: style})
	return nil
}

func (f *fakeSink) Close() error { return nil }

type fakeAlerter struct {
	mu    sync.Mutex
	calls []Metrics
}

func (a *fakeAlerter) VolatilityAlert(key market.Key, m Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, m)
}

func watchTable(t *testing.T) *registry.Table {
	t.Helper()
	table := registry.New()
	table.AddListing("Watch", [][]string{
		{"Exchange", "Symbol"},
		{"NSE", "RELIANCE"},
		{"NSE", "TCS"},
	}, "")
	return table
}

func newTestEngine(table *registry.Table, sink sheet.Sink, alerter Alerter, streamLayout bool) *Engine {
	e := New(table, NewStateStore(), sink, alerter, streamLayout)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 9, 15, 0, 0, time.Local) }
	return e
}

func TestProcessFirstQuote(t *testing.T) {
	sink := &fakeSink{}
	table := watchTable(t)
	eng := newTestEngine(table, sink, nil, false)

	key := market.NewKey("NSE", "RELIANCE")
	err := eng.Process(context.Background(), key, market.Quote{LTP: fp(100.0), PrevClose: 100.0})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(sink.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(sink.writes))
	}
	w := sink.writes[0]
	if w.Range != "C2:K2" || w.Sheet != "Watch" {
		t.Errorf("wrote %s!%s, want Watch!C2:K2", w.Sheet, w.Range)
	}
	if w.Values[1] != "-" {
		t.Errorf("delta cell = %v, want \"-\" on first observation", w.Values[1])
	}
	if len(sink.styles) != 1 || sink.styles[0].Style != sheet.StyleNeutral {
		t.Errorf("style = %+v, want one neutral", sink.styles)
	}
	if prev := eng.state.LastPrice(key); prev == nil || *prev != 100.0 {
		t.Errorf("state after first quote = %v, want 100.0", prev)
	}
}

func TestProcessTrendAndIdempotence(t *testing.T) {
	sink := &fakeSink{}
	alerter := &fakeAlerter{}
	table := watchTable(t)
	eng := newTestEngine(table, sink, alerter, false)

	key := market.NewKey("NSE", "RELIANCE")
	ctx := context.Background()

	if err := eng.Process(ctx, key, market.Quote{LTP: fp(100.0), PrevClose: 100.0}); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	up := market.Quote{LTP: fp(102.5), PrevClose: 100.0}
	if err := eng.Process(ctx, key, up); err != nil {
		t.Fatalf("second quote: %v", err)
	}

	if got := sink.styles[1].Style; got != sheet.StylePositive {
		t.Errorf("style after rise = %s, want positive", got)
	}
	if d, ok := sink.writes[1].Values[1].(float64); !ok || d != 2.5 {
		t.Errorf("delta cell = %v, want 2.5", sink.writes[1].Values[1])
	}
	if len(alerter.calls) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerter.calls))
	}
	if a := alerter.calls[0]; !a.Alert || a.AlertDirection != TrendUp || a.Volatility != VolSpike {
		t.Errorf("alert = %+v, want up spike", a)
	}

	// Same quote again: state already matches, so trend flattens while the
	// volatility classification is unchanged.
	if err := eng.Process(ctx, key, up); err != nil {
		t.Fatalf("repeat quote: %v", err)
	}
	if got := sink.styles[2].Style; got != sheet.StyleNeutral {
		t.Errorf("style after repeat = %s, want neutral", got)
	}
	if sink.writes[2].Values[2] != "➖" {
		t.Errorf("trend cell after repeat = %v, want flat glyph", sink.writes[2].Values[2])
	}
	if alerter.calls[len(alerter.calls)-1].Volatility != VolSpike {
		t.Errorf("classification changed on repeat quote")
	}
}

func TestProcessUnboundKeyIgnored(t *testing.T) {
	sink := &fakeSink{}
	table := watchTable(t)
	eng := newTestEngine(table, sink, nil, false)

	key := market.NewKey("MCX", "GOLD")
	if err := eng.Process(context.Background(), key, market.Quote{LTP: fp(1.0)}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sink.writes) != 0 || len(sink.styles) != 0 {
		t.Error("unbound key must not touch the sink")
	}
	if eng.state.LastPrice(key) != nil {
		t.Error("unbound key must not mutate state")
	}
}

func TestProcessSinkFailureStillAdvancesState(t *testing.T) {
	sink := &fakeSink{failWrites: true}
	table := watchTable(t)
	eng := newTestEngine(table, sink, nil, false)

	key := market.NewKey("NSE", "TCS")
	err := eng.Process(context.Background(), key, market.Quote{LTP: fp(55.5)})
	if err == nil {
		t.Fatal("expected sink write error")
	}
	if prev := eng.state.LastPrice(key); prev == nil || *prev != 55.5 {
		t.Errorf("state = %v, want 55.5 despite sink failure", prev)
	}
}

func TestProcessStreamLayout(t *testing.T) {
	sink := &fakeSink{}
	table := watchTable(t)
	eng := newTestEngine(table, sink, nil, true)

	key := market.NewKey("NSE", "TCS")
	q := market.Quote{LTP: fp(3500.0), Open: 3480, High: 3510, Low: 3470, Volume: 12000, PrevClose: 3490}
	if err := eng.Process(context.Background(), key, q); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(sink.writes) != 1 || sink.writes[0].Range != "C3:J3" {
		t.Fatalf("writes = %+v, want one C3:J3", sink.writes)
	}
	if len(sink.formulas) != 1 {
		t.Fatalf("formulas = %d, want 1", len(sink.formulas))
	}
	f := sink.formulas[0]
	if f.Range != "K3" || f.Values[0] != `=IFERROR((C3-J3)/J3,"")` {
		t.Errorf("formula = %+v", f)
	}
}

func TestEnsureHeader(t *testing.T) {
	tests := []struct {
		name      string
		rows      [][]string
		wantWrite bool
	}{
		{"empty sheet", nil, true},
		{"corrupted header", [][]string{{"Foo", "Bar"}}, true},
		{"header present", [][]string{{"Exchange", "Symbol", "LTP"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			eng := newTestEngine(watchTable(t), sink, nil, false)
			if err := eng.EnsureHeader(context.Background(), "Watch", tt.rows); err != nil {
				t.Fatalf("ensure header: %v", err)
			}
			if got := len(sink.writes) == 1; got != tt.wantWrite {
				t.Errorf("header written = %v, want %v", got, tt.wantWrite)
			}
			if tt.wantWrite && sink.writes[0].Range != "A1:K1" {
				t.Errorf("header range = %s, want A1:K1", sink.writes[0].Range)
			}
		})
	}
}
