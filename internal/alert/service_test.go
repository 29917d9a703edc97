package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeNotifier) SendMarkdown(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

func upSpike(pct float64) engine.Metrics {
	return engine.Metrics{
		Alert:          true,
		AlertDirection: engine.TrendUp,
		VolatilityPct:  pct,
		Volatility:     engine.VolSpike,
		Timestamp:      "2024-03-01 09:15:00",
	}
}

func TestVolatilityAlertDedup(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, Config{DedupWindow: time.Minute, PerMinute: 60, Burst: 10})
	key := market.NewKey("NSE", "RELIANCE")

	svc.VolatilityAlert(key, upSpike(2.5))
	svc.VolatilityAlert(key, upSpike(2.6)) // same key+direction inside window

	if n.count() != 1 {
		t.Errorf("pushes = %d, want 1 (deduped)", n.count())
	}

	// Opposite direction is a different dedup bucket.
	down := upSpike(-2.5)
	down.AlertDirection = engine.TrendDown
	svc.VolatilityAlert(key, down)
	if n.count() != 2 {
		t.Errorf("pushes = %d, want 2", n.count())
	}

	if got := len(svc.Recent()); got != 3 {
		t.Errorf("recent = %d, want 3 (every alert recorded)", got)
	}
}

func TestVolatilityAlertRateLimit(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(n, Config{PerMinute: 60, Burst: 2})

	for i := 0; i < 5; i++ {
		key := market.NewKey("NSE", string(rune('A'+i)))
		svc.VolatilityAlert(key, upSpike(3.0))
	}
	if n.count() > 2 {
		t.Errorf("pushes = %d, want at most burst of 2", n.count())
	}
}

func TestRecentRingBounded(t *testing.T) {
	svc := NewService(nil, Config{RecentKeep: 3})
	key := market.NewKey("NSE", "TCS")
	for i := 0; i < 10; i++ {
		svc.VolatilityAlert(key, upSpike(float64(i)))
	}
	recent := svc.Recent()
	if len(recent) != 3 {
		t.Fatalf("recent = %d, want 3", len(recent))
	}
	if recent[0].Pct != 9 {
		t.Errorf("newest first: recent[0].Pct = %v, want 9", recent[0].Pct)
	}
}
