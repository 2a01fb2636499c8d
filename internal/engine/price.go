package engine

import (
	"math/rand/v2"
)

// MinPrice is the floor applied after every step so prices stay positive.
const MinPrice = 0.01

// PriceProcess is a per-symbol random walk: each step multiplies the price
// by (1 + N(0, volatility)) and floors the result at MinPrice. It keeps no
// history and is not safe for concurrent use.
type PriceProcess struct {
	volatility float64
	rng        *rand.Rand
}

// NewPriceProcess returns a process with the given volatility. A nil rng is
// replaced by a randomly seeded one.
func NewPriceProcess(volatility float64, rng *rand.Rand) *PriceProcess {
	if rng == nil {
		rng = newRand()
	}
	return &PriceProcess{volatility: volatility, rng: rng}
}

// Step returns the next price for one symbol.
func (p *PriceProcess) Step(price float64) float64 {
	change := p.rng.NormFloat64() * p.volatility
	return max(price*(1+change), MinPrice)
}

// Advance steps every price in place, visiting symbols in the given order
// so a seeded process is reproducible.
func (p *PriceProcess) Advance(order []string, prices map[string]float64) {
	for _, sym := range order {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		prices[sym] = p.Step(price)
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
