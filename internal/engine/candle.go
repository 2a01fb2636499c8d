package engine

import (
	"sort"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
)

// CandleAggregator holds the live candle of every symbol. It is not
// synchronized; Market guards it with the same lock as the prices.
type CandleAggregator struct {
	candles map[string]*domain.Candle
}

// NewCandleAggregator seeds one candle per symbol anchored at its price.
func NewCandleAggregator(prices map[string]float64, start time.Time) *CandleAggregator {
	a := &CandleAggregator{candles: make(map[string]*domain.Candle, len(prices))}
	a.Reset(prices, start)
	return a
}

// OnTick folds a new price into the symbol's live candle.
func (a *CandleAggregator) OnTick(symbol string, price float64) {
	if c, ok := a.candles[symbol]; ok {
		c.Observe(price)
	}
}

// AddVolume credits executed amount to the symbol's live candle.
func (a *CandleAggregator) AddVolume(symbol string, amount float64) {
	if c, ok := a.candles[symbol]; ok {
		c.Volume += amount
	}
}

// Get returns a copy of the symbol's live candle.
func (a *CandleAggregator) Get(symbol string) (domain.Candle, bool) {
	c, ok := a.candles[symbol]
	if !ok {
		return domain.Candle{}, false
	}
	return *c, true
}

// Snapshot returns copies of every live candle ordered by symbol.
func (a *CandleAggregator) Snapshot() []domain.Candle {
	out := make([]domain.Candle, 0, len(a.candles))
	for _, c := range a.candles {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Reset replaces every candle with a fresh one anchored at the current
// price and starting at now.
func (a *CandleAggregator) Reset(prices map[string]float64, now time.Time) {
	for sym, price := range prices {
		c := domain.NewCandle(sym, price, now)
		a.candles[sym] = &c
	}
}
