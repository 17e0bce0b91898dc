// Package candlestore maintains the bounded, time-ordered sliding window of
// raw candles for a single instrument. Upserts are keyed by bucket time: a
// kline revision for a still-forming bar replaces the stored bar, a new
// bucket appends and evicts the oldest entry once capacity is exceeded.
//
// The store is owned by the signal engine's event loop and is never touched
// from another goroutine, so it carries no locking.
package candlestore

import "stochbot/internal/model"

// DefaultCapacity matches the original deployment's 100-bar window.
const DefaultCapacity = 100

// Store is the bounded candle window.
type Store struct {
	capacity int
	candles  []model.Candle
}

// New creates a store holding at most capacity candles.
// Non-positive capacities fall back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		candles:  make([]model.Candle, 0, capacity+1),
	}
}

// Upsert replaces the candle with the same bucket time if present, otherwise
// appends. The oldest candle is evicted when the window exceeds capacity.
// Feed events arrive in time order, so the replace scan runs back-to-front
// and almost always hits the last element.
func (s *Store) Upsert(c model.Candle) {
	for i := len(s.candles) - 1; i >= 0; i-- {
		if s.candles[i].Time == c.Time {
			s.candles[i] = c
			return
		}
	}
	s.candles = append(s.candles, c)
	if len(s.candles) > s.capacity {
		s.candles = s.candles[1:]
	}
}

// Window returns a copy of the current ordered window. Callers may hold the
// slice across later upserts without seeing mutations.
func (s *Store) Window() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Latest returns the most recent candle, or (zero, false) when empty.
func (s *Store) Latest() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Len returns the number of candles currently held.
func (s *Store) Len() int { return len(s.candles) }

// Capacity returns the configured window bound.
func (s *Store) Capacity() int { return s.capacity }
