package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

type fakeStream struct {
	mu      sync.Mutex
	keys    []market.Key
	handler market.QuoteHandler
	closed  bool
}

func (f *fakeStream) Subscribe(_ context.Context, keys []market.Key, h market.QuoteHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = keys
	f.handler = h
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) emit(key market.Key, q market.Quote) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(key, q)
	}
}

func TestStreamConsumerProcessesEvents(t *testing.T) {
	table := testTable()
	state := engine.NewStateStore()
	sink := newNopSink()
	eng := engine.New(table, state, sink, nil, true)
	stream := &fakeStream{}
	c := NewStreamConsumer(stream, table, eng)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(time.Second)
	for {
		stream.mu.Lock()
		ready := stream.handler != nil
		stream.mu.Unlock()
		if ready {
			break
		}
		select {
		case <-deadline:
			t.Fatal("subscribe never happened")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if len(stream.keys) != 2 {
		t.Errorf("subscribed keys = %d, want 2", len(stream.keys))
	}

	key := market.NewKey("NSE", "RELIANCE")
	stream.emit(key, market.Quote{LTP: fp(101.0), PrevClose: 100.0})

	if prev := state.LastPrice(key); prev == nil || *prev != 101.0 {
		t.Errorf("state after event = %v, want 101.0", prev)
	}
	if sink.writes["Watch!C2:J2"] != 1 {
		t.Errorf("row writes = %d, want 1", sink.writes["Watch!C2:J2"])
	}
	if _, ok := c.LatestQuotes()[key.String()]; !ok {
		t.Error("latest quote cache missing the event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on cancel")
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if !stream.closed {
		t.Error("stream not closed on shutdown")
	}
}
