package domain

import "time"

// Candle is an open-high-low-close-volume summary of one symbol over one
// period. PeriodStart and Open are fixed when the candle is created.
type Candle struct {
	Symbol      string
	PeriodStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// NewCandle returns a fresh candle anchored at price.
func NewCandle(symbol string, price float64, start time.Time) Candle {
	return Candle{
		Symbol:      symbol,
		PeriodStart: start,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
	}
}

// Observe folds a new price into the candle.
func (c *Candle) Observe(price float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
}

// Consistent reports whether low <= open,close <= high and volume >= 0.
func (c Candle) Consistent() bool {
	return c.Low <= c.Open && c.Low <= c.Close &&
		c.High >= c.Open && c.High >= c.Close &&
		c.Volume >= 0
}
