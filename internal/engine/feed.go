package engine

import (
	"sync"
	"time"
)

// PriceUpdate is one published snapshot of live prices.
type PriceUpdate struct {
	At     time.Time          `json:"at"`
	Prices map[string]float64 `json:"prices"`
}

// PriceFeed fans price updates out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses that update.
type PriceFeed struct {
	mu     sync.Mutex
	subs   map[int]chan PriceUpdate
	nextID int
}

// NewPriceFeed creates an empty feed.
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{subs: make(map[int]chan PriceUpdate)}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel; calling it more than once is safe.
func (f *PriceFeed) Subscribe(buffer int) (<-chan PriceUpdate, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan PriceUpdate, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers u to every subscriber that has room for it.
func (f *PriceFeed) Publish(u PriceUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (f *PriceFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
