package market

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Key identifies an instrument: a symbol scoped to an exchange.
type Key struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

func NewKey(exchange, symbol string) Key {
	return Key{Exchange: strings.TrimSpace(exchange), Symbol: strings.TrimSpace(symbol)}
}

func (k Key) String() string {
	return k.Exchange + ":" + k.Symbol
}

func (k Key) Valid() bool {
	return k.Exchange != "" && k.Symbol != ""
}

// Quote is one validated snapshot for an instrument. LTP and Timestamp are
// optional on the wire, so they stay pointers here; the rest default to zero.
type Quote struct {
	LTP       *float64 `json:"ltp,omitempty"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Volume    float64  `json:"volume"`
	PrevClose float64  `json:"prev_close"`
	// Timestamp is epoch milliseconds when the provider supplies one.
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// ErrNoData is returned when the provider answered but carried no quote for
// the requested instrument (status != success or an empty data array).
var ErrNoData = errors.New("no quote data")

// QuoteProvider is the poll-mode ingestion surface.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, key Key) (Quote, error)
}

// QuoteHandler receives one quote per stream event.
type QuoteHandler func(key Key, q Quote)

// QuoteStream is the push-mode ingestion surface. Subscribe registers the
// instrument list and the handler; events arrive on background goroutines
// until ctx is cancelled or Close is called.
type QuoteStream interface {
	Subscribe(ctx context.Context, keys []Key, h QuoteHandler) error
	Close() error
}

func floatField(m map[string]any, name string) float64 {
	v, ok := m[name]
	if !ok {
		return 0
	}
	f, _ := toFloat(v)
	return f
}

func optFloatField(m map[string]any, name string) *float64 {
	v, ok := m[name]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func optIntField(m map[string]any, name string) *int64 {
	v, ok := m[name]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// quoteFromFields maps a loose provider payload onto a validated Quote.
// Unknown or malformed fields degrade to absent/zero instead of propagating.
func quoteFromFields(m map[string]any) Quote {
	return Quote{
		LTP:       optFloatField(m, "ltp"),
		Open:      floatField(m, "open"),
		High:      floatField(m, "high"),
		Low:       floatField(m, "low"),
		Volume:    floatField(m, "volume"),
		PrevClose: floatField(m, "prev_close"),
		Timestamp: optIntField(m, "timestamp"),
	}
}
