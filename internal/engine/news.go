package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/efreitasn/simmarket/internal/domain"
)

// NewsGenerator produces flavor headlines about a random symbol. It is not
// safe for concurrent use.
type NewsGenerator struct {
	symbols     []string
	templates   []string
	probability float64
	rng         *rand.Rand
}

// NewNewsGenerator returns a generator that fires with the given probability
// on each Maybe call. Templates use {symbol} as the placeholder.
func NewNewsGenerator(symbols, templates []string, probability float64, rng *rand.Rand) *NewsGenerator {
	if rng == nil {
		rng = newRand()
	}
	return &NewsGenerator{
		symbols:     symbols,
		templates:   templates,
		probability: probability,
		rng:         rng,
	}
}

// Maybe rolls the dice and returns a headline when it fires.
func (g *NewsGenerator) Maybe() (domain.News, bool) {
	if len(g.symbols) == 0 || len(g.templates) == 0 {
		return domain.News{}, false
	}
	if g.rng.Float64() >= g.probability {
		return domain.News{}, false
	}
	sym := g.symbols[g.rng.IntN(len(g.symbols))]
	tmpl := g.templates[g.rng.IntN(len(g.templates))]
	return domain.News{
		Symbol:  sym,
		Title:   fmt.Sprintf("Market flash: %s", sym),
		Content: strings.ReplaceAll(tmpl, "{symbol}", sym),
	}, true
}
