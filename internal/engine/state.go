package engine

import (
	"sync"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

// StateStore holds the last observed traded price per instrument. Entries
// are created lazily on the first quote for a key and live for the process
// lifetime. The lock also serializes concurrent stream callbacks that race
// on the same key.
type StateStore struct {
	mu   sync.Mutex
	last map[market.Key]float64
}

func NewStateStore() *StateStore {
	return &StateStore{last: make(map[market.Key]float64)}
}

// LastPrice returns the previously observed price, or nil when the key has
// never been seen.
func (s *StateStore) LastPrice(key market.Key) *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[key]
	if !ok {
		return nil
	}
	return &v
}

// Advance records the current price as the new last-seen value. A nil price
// (quote without an LTP) leaves the state untouched.
func (s *StateStore) Advance(key market.Key, price *float64) {
	if price == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key] = *price
}

// Snapshot copies the full key -> last-price map, for the status API.
func (s *StateStore) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.last))
	for k, v := range s.last {
		out[k.String()] = v
	}
	return out
}
