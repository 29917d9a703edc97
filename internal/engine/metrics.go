package engine

import (
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

type VolatilityClass string

const (
	VolSpike   VolatilityClass = "spike"
	VolQuiet   VolatilityClass = "quiet"
	VolNormal  VolatilityClass = "normal"
	VolUnknown VolatilityClass = "unknown"
)

const (
	spikeThresholdPct = 2.0
	quietThresholdPct = 0.3
	alertThresholdPct = 1.0
)

const timestampLayout = "2006-01-02 15:04:05"

// Metrics is the derived record for one reconciled quote. Delta is nil when
// there is no previous reference point (first observation, or a quote
// without an LTP).
type Metrics struct {
	Delta          *float64        `json:"delta,omitempty"`
	Trend          Trend           `json:"trend"`
	VolatilityPct  float64         `json:"volatility_pct"`
	Volatility     VolatilityClass `json:"volatility"`
	Alert          bool            `json:"alert"`
	AlertDirection Trend           `json:"alert_direction,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// Compute derives delta, trend, volatility and the alert decision from the
// previous observation and the current quote. Pure: the caller advances the
// state store afterwards.
func Compute(prev *float64, q market.Quote, now time.Time) Metrics {
	m := Metrics{Trend: TrendFlat, Volatility: VolUnknown, Timestamp: formatTimestamp(q.Timestamp, now)}

	if prev != nil && q.LTP != nil {
		d := *q.LTP - *prev
		m.Delta = &d
		switch {
		case d > 0:
			m.Trend = TrendUp
		case d < 0:
			m.Trend = TrendDown
		}
	}

	if q.LTP != nil && *q.LTP != 0 && q.PrevClose != 0 {
		m.VolatilityPct = (*q.LTP - q.PrevClose) / q.PrevClose * 100
		m.Volatility = ClassifyVolatility(m.VolatilityPct)
	}

	if abs(m.VolatilityPct) >= alertThresholdPct {
		m.Alert = true
		if m.VolatilityPct > 0 {
			m.AlertDirection = TrendUp
		} else {
			m.AlertDirection = TrendDown
		}
	}
	return m
}

// ClassifyVolatility buckets a percentage move by magnitude alone; the sign
// never matters.
func ClassifyVolatility(pct float64) VolatilityClass {
	switch {
	case abs(pct) > spikeThresholdPct:
		return VolSpike
	case abs(pct) < quietThresholdPct:
		return VolQuiet
	default:
		return VolNormal
	}
}

// formatTimestamp renders the quote's epoch-ms timestamp in local time, or
// falls back to the processing clock when the quote carries none.
func formatTimestamp(ms *int64, now time.Time) string {
	if ms != nil {
		return time.UnixMilli(*ms).Format(timestampLayout)
	}
	return now.Format(timestampLayout)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
