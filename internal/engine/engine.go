package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"
	"github.com/jabez4jc/openalgo-gsheets/internal/sheet"
)

// Header is the poll-mode dashboard schema, written to A1:K1 when missing.
var Header = []string{"Exchange", "Symbol", "LTP", "Δ", "Trend", "Open", "High", "Low", "Volume", "Volatility", "Timestamp"}

// Alerter receives the side-channel notification for large moves. The sink
// write never goes through here.
type Alerter interface {
	VolatilityAlert(key market.Key, m Metrics)
}

// Engine reconciles each incoming quote against the last observed price and
// emits the updated row to the sink. One instance serves both ingestion
// modes; streamLayout switches the row format.
type Engine struct {
	table        *registry.Table
	state        *StateStore
	sink         sheet.Sink
	alerter      Alerter
	streamLayout bool

	now func() time.Time
}

func New(table *registry.Table, state *StateStore, sink sheet.Sink, alerter Alerter, streamLayout bool) *Engine {
	return &Engine{
		table:        table,
		state:        state,
		sink:         sink,
		alerter:      alerter,
		streamLayout: streamLayout,
		now:          time.Now,
	}
}

// Process runs the per-quote algorithm: resolve the slot, compute metrics
// against the previous observation, advance state, write the row and style,
// and raise the alert when warranted. Quotes for unbound keys are ignored.
// The state store advances even when the sink write fails afterwards.
func (e *Engine) Process(ctx context.Context, key market.Key, q market.Quote) error {
	b, ok := e.table.Resolve(key)
	if !ok {
		return nil
	}

	prev := e.state.LastPrice(key)
	m := Compute(prev, q, e.now())
	style := StyleFor(m.Trend)

	e.state.Advance(key, q.LTP)

	if err := e.writeRow(ctx, b, q, m, style); err != nil {
		return fmt.Errorf("row %d (%s): %w", b.Row, key, err)
	}

	if m.Alert && e.alerter != nil {
		e.alerter.VolatilityAlert(key, m)
	}

	log.Printf("✅ %s: LTP=%s Δ=%s %s vol=%.2f%% %s",
		key, cellString(q.LTP), deltaString(m.Delta), trendGlyph(m.Trend), m.VolatilityPct, volGlyph(m.Volatility))
	return nil
}

// EnsureHeader writes the header row when the sheet is empty or its first
// two header cells don't match the expected schema.
func (e *Engine) EnsureHeader(ctx context.Context, sheetName string, rows [][]string) error {
	if len(rows) > 0 && len(rows[0]) >= 2 && rows[0][0] == Header[0] && rows[0][1] == Header[1] {
		return nil
	}
	values := make([]any, len(Header))
	for i, h := range Header {
		values[i] = h
	}
	if err := e.sink.WriteRange(ctx, sheetName, "A1:K1", values); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (e *Engine) writeRow(ctx context.Context, b registry.Binding, q market.Quote, m Metrics, style sheet.Style) error {
	if e.streamLayout {
		if err := e.writeStreamRow(ctx, b, q, m); err != nil {
			return err
		}
	} else {
		if err := e.writePollRow(ctx, b, q, m); err != nil {
			return err
		}
	}
	rng := fmt.Sprintf("A%d:K%d", b.Row, b.Row)
	if err := e.sink.ApplyStyle(ctx, b.Sheet, rng, style); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}
	return nil
}

// Poll layout: C..K = LTP, Δ, trend, open, high, low, volume, volatility, ts.
func (e *Engine) writePollRow(ctx context.Context, b registry.Binding, q market.Quote, m Metrics) error {
	values := []any{
		cellValue(q.LTP),
		deltaCell(m.Delta),
		trendGlyph(m.Trend),
		q.Open,
		q.High,
		q.Low,
		q.Volume,
		fmt.Sprintf("%.2f%% %s", m.VolatilityPct, volGlyph(m.Volatility)),
		m.Timestamp,
	}
	rng := fmt.Sprintf("C%d:K%d", b.Row, b.Row)
	return e.sink.WriteRange(ctx, b.Sheet, rng, values)
}

// Stream layout: C..J = LTP, Δ, open, high, low, volume, ts, prev close,
// plus the derived-ratio formula in K.
func (e *Engine) writeStreamRow(ctx context.Context, b registry.Binding, q market.Quote, m Metrics) error {
	values := []any{
		cellValue(q.LTP),
		streamDeltaCell(m),
		q.Open,
		q.High,
		q.Low,
		q.Volume,
		m.Timestamp,
		q.PrevClose,
	}
	rng := fmt.Sprintf("C%d:J%d", b.Row, b.Row)
	if err := e.sink.WriteRange(ctx, b.Sheet, rng, values); err != nil {
		return err
	}
	formula := fmt.Sprintf(`=IFERROR((C%d-J%d)/J%d,"")`, b.Row, b.Row, b.Row)
	cell := fmt.Sprintf("K%d", b.Row)
	if err := e.sink.WriteFormula(ctx, b.Sheet, cell, formula); err != nil {
		return fmt.Errorf("write formula: %w", err)
	}
	return nil
}

func cellValue(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func cellString(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// deltaCell renders a missing delta as "-", never as a fake zero.
func deltaCell(d *float64) any {
	if d == nil {
		return "-"
	}
	return round2(*d)
}

func deltaString(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *d)
}

func streamDeltaCell(m Metrics) string {
	if m.Delta == nil {
		return "-"
	}
	if glyph := trendArrow(m.Trend); glyph != "" {
		return fmt.Sprintf("%s %.2f", glyph, *m.Delta)
	}
	return fmt.Sprintf("%.2f", *m.Delta)
}

func trendGlyph(t Trend) string {
	switch t {
	case TrendUp:
		return "📈"
	case TrendDown:
		return "📉"
	default:
		return "➖"
	}
}

func trendArrow(t Trend) string {
	switch t {
	case TrendUp:
		return "📈"
	case TrendDown:
		return "📉"
	default:
		return ""
	}
}

func volGlyph(c VolatilityClass) string {
	switch c {
	case VolSpike:
		return "⚡"
	case VolQuiet:
		return "💤"
	case VolNormal:
		return "📊"
	default:
		return "❓"
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
