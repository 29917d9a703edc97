package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"
)

// Poller drives poll mode: on each cycle it fetches a quote for every bound
// instrument in listing order and hands it to the engine. One bad instrument
// never stops the cycle.
type Poller struct {
	provider market.QuoteProvider
	table    *registry.Table
	engine   *engine.Engine
	interval time.Duration

	mu                  sync.Mutex
	latest              map[market.Key]market.Quote
	consecutiveFailures int
}

func NewPoller(provider market.QuoteProvider, table *registry.Table, eng *engine.Engine, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Poller{
		provider: provider,
		table:    table,
		engine:   eng,
		interval: interval,
		latest:   make(map[market.Key]market.Quote),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		failed := p.pollOnce(ctx)
		interval := p.nextInterval(failed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// pollOnce processes every binding and reports whether the whole cycle
// failed to produce a single quote.
func (p *Poller) pollOnce(ctx context.Context) bool {
	bindings := p.table.All()
	got := 0
	for _, b := range bindings {
		if ctx.Err() != nil {
			return false
		}
		q, err := p.provider.FetchQuote(ctx, b.Key)
		if errors.Is(err, market.ErrNoData) {
			log.Printf("⚠️ no data for %s", b.Key)
			continue
		}
		if err != nil {
			log.Printf("❌ fetch error on row %d (%s): %v", b.Row, b.Key, err)
			continue
		}
		got++
		p.remember(b.Key, q)

		if err := p.engine.Process(ctx, b.Key, q); err != nil {
			log.Printf("❌ process error on row %d (%s): %v", b.Row, b.Key, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if got == 0 && len(bindings) > 0 {
		p.consecutiveFailures++
		return true
	}
	p.consecutiveFailures = 0
	return false
}

// nextInterval stretches the poll interval after repeated empty cycles so a
// dead provider isn't hammered.
func (p *Poller) nextInterval(failed bool) time.Duration {
	if !failed {
		return p.interval
	}
	p.mu.Lock()
	failures := p.consecutiveFailures
	p.mu.Unlock()
	if failures >= 6 {
		return p.interval * 4
	}
	if failures >= 3 {
		return p.interval * 2
	}
	return p.interval
}

func (p *Poller) remember(key market.Key, q market.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest[key] = q
}

// LatestQuotes snapshots the last good quote per instrument, for the API.
func (p *Poller) LatestQuotes() map[string]market.Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]market.Quote, len(p.latest))
	for k, q := range p.latest {
		out[k.String()] = q
	}
	return out
}
