package alert

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

// Notifier is the optional push channel behind the console alert.
type Notifier interface {
	SendMarkdown(ctx context.Context, title, markdown string) error
}

// Record is one raised alert, kept in a bounded in-memory ring for the API.
type Record struct {
	TS         int64   `json:"ts"`
	Instrument string  `json:"instrument"`
	Pct        float64 `json:"pct"`
	Direction  string  `json:"direction"`
	Class      string  `json:"class"`
}

type Config struct {
	DedupWindow time.Duration
	PerMinute   int
	Burst       int
	RecentKeep  int
}

// Service raises the volatility alerts the engine decides on. Every alert is
// logged; pushes are deduped per instrument+direction inside a window and
// globally rate limited so a choppy market can't flood the webhook.
type Service struct {
	cfg      Config
	notifier Notifier
	limiter  *tokenBucket

	mu     sync.Mutex
	dedup  map[string]time.Time
	recent []Record
}

func NewService(notifier Notifier, cfg Config) *Service {
	if cfg.RecentKeep <= 0 {
		cfg.RecentKeep = 100
	}
	return &Service{
		cfg:      cfg,
		notifier: notifier,
		limiter:  newTokenBucket(cfg.PerMinute, cfg.Burst),
		dedup:    make(map[string]time.Time),
	}
}

// VolatilityAlert implements engine.Alerter.
func (s *Service) VolatilityAlert(key market.Key, m engine.Metrics) {
	arrow := "⬆️"
	if m.AlertDirection == engine.TrendDown {
		arrow = "⬇️"
	}
	log.Printf("⚠️ %s moved %s %.2f%% from prev close", key.Symbol, arrow, m.VolatilityPct)

	s.record(key, m)

	if s.notifier == nil {
		return
	}
	if s.isDeduped(key, m.AlertDirection) {
		return
	}
	if !s.limiter.Allow() {
		log.Printf("alert push suppressed by rate limit: %s", key)
		return
	}

	title := fmt.Sprintf("%s %s %.2f%%", key.Symbol, arrow, m.VolatilityPct)
	markdown := fmt.Sprintf("**%s**\n- move: %s %.2f%% vs prev close\n- volatility: %s\n- at: %s",
		key, arrow, m.VolatilityPct, m.Volatility, m.Timestamp)
	if err := s.notifier.SendMarkdown(context.Background(), title, markdown); err != nil {
		log.Printf("alert push error for %s: %v", key, err)
	}
}

// Recent returns the newest alerts, most recent first.
func (s *Service) Recent() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recent))
	for i, r := range s.recent {
		out[len(s.recent)-1-i] = r
	}
	return out
}

func (s *Service) record(key market.Key, m engine.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, Record{
		TS:         time.Now().Unix(),
		Instrument: key.String(),
		Pct:        m.VolatilityPct,
		Direction:  string(m.AlertDirection),
		Class:      string(m.Volatility),
	})
	if len(s.recent) > s.cfg.RecentKeep {
		s.recent = s.recent[len(s.recent)-s.cfg.RecentKeep:]
	}
}

func (s *Service) isDeduped(key market.Key, dir engine.Trend) bool {
	if s.cfg.DedupWindow <= 0 {
		return false
	}
	k := key.String() + ":" + string(dir)
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.dedup[k]; ok && now.Sub(last) <= s.cfg.DedupWindow {
		return true
	}
	s.dedup[k] = now
	return false
}

// tokenBucket is a simple global rate limiter for the push channel.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	ratePerS   float64
	burst      float64
	lastRefill time.Time
	disabled   bool
}

func newTokenBucket(perMinute, burst int) *tokenBucket {
	if perMinute <= 0 {
		return &tokenBucket{disabled: true}
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &tokenBucket{
		tokens:     float64(burst),
		ratePerS:   float64(perMinute) / 60.0,
		burst:      float64(burst),
		lastRefill: time.Now(),
	}
}

func (t *tokenBucket) Allow() bool {
	if t == nil || t.disabled {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed > 0 {
		t.tokens += elapsed * t.ratePerS
		if t.tokens > t.burst {
			t.tokens = t.burst
		}
		t.lastRefill = now
	}
	if t.tokens >= 1 {
		t.tokens -= 1
		return true
	}
	return false
}
