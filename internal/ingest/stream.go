package ingest

import (
	"context"
	"log"
	"sync"

	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"
)

// StreamConsumer drives stream mode: it subscribes the full binding table on
// the quote stream and feeds each event to the engine from the callback.
type StreamConsumer struct {
	stream market.QuoteStream
	table  *registry.Table
	engine *engine.Engine

	mu     sync.Mutex
	latest map[market.Key]market.Quote
}

func NewStreamConsumer(stream market.QuoteStream, table *registry.Table, eng *engine.Engine) *StreamConsumer {
	return &StreamConsumer{
		stream: stream,
		table:  table,
		engine: eng,
		latest: make(map[market.Key]market.Quote),
	}
}

// Run subscribes and then blocks until ctx is cancelled; all work happens in
// the stream callback.
func (c *StreamConsumer) Run(ctx context.Context) error {
	bindings := c.table.All()
	keys := make([]market.Key, 0, len(bindings))
	for _, b := range bindings {
		keys = append(keys, b.Key)
	}

	err := c.stream.Subscribe(ctx, keys, func(key market.Key, q market.Quote) {
		c.mu.Lock()
		c.latest[key] = q
		c.mu.Unlock()

		if err := c.engine.Process(ctx, key, q); err != nil {
			log.Printf("❌ stream process error (%s): %v", key, err)
		}
	})
	if err != nil {
		return err
	}
	log.Printf("subscribed to %d instruments", len(keys))

	<-ctx.Done()
	if err := c.stream.Close(); err != nil {
		log.Printf("stream close error: %v", err)
	}
	return ctx.Err()
}

// LatestQuotes snapshots the last quote per instrument, for the API.
func (c *StreamConsumer) LatestQuotes() map[string]market.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]market.Quote, len(c.latest))
	for k, q := range c.latest {
		out[k.String()] = q
	}
	return out
}
