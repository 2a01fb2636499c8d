package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeQuoter serves fixed prices and records credited volume.
type fakeQuoter struct {
	mu     sync.Mutex
	open   bool
	prices map[string]float64
	volume map[string]float64
}

func newFakeQuoter(open bool, prices map[string]float64) *fakeQuoter {
	return &fakeQuoter{open: open, prices: prices, volume: make(map[string]float64)}
}

func (q *fakeQuoter) Quote() Quote {
	q.mu.Lock()
	defer q.mu.Unlock()
	prices := make(map[string]float64, len(q.prices))
	for k, v := range q.prices {
		prices[k] = v
	}
	return Quote{Open: q.open, Prices: prices}
}

func (q *fakeQuoter) AddVolume(symbol string, amount float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.volume[symbol] += amount
}

func (q *fakeQuoter) set(open bool, symbol string, price float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.open = open
	q.prices[symbol] = price
}

// schedule is a controllable trading calendar.
type schedule struct{ open atomic.Bool }

func (s *schedule) fn(time.Time) bool { return s.open.Load() }

var testEpoch = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func seededRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func testSymbols(t testing.TB) *domain.SymbolSet {
	t.Helper()
	set, err := domain.NewSymbolSet([]domain.Symbol{
		{Code: "ZRB", Name: "Ziran", InitialPrice: 100},
		{Code: "STAR", Name: "Star", InitialPrice: 50},
	})
	if err != nil {
		t.Fatalf("symbol set: %v", err)
	}
	return set
}

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

func seedUser(t tb, s store.Store, userID string, balance float64, holdings map[string]float64) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetOrCreateUser(ctx, userID, balance); err != nil {
			return err
		}
		for sym, amt := range holdings {
			if err := tx.UpsertHolding(ctx, domain.Holding{UserID: userID, Symbol: sym, Amount: amt}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func placeOrder(t tb, s store.Store, o domain.Order) int64 {
	t.Helper()
	ctx := context.Background()
	o.Status = domain.OrderStatusPending
	if o.CreatedAt.IsZero() {
		o.CreatedAt = testEpoch
	}
	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertOrder(ctx, &o)
	})
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return o.ID
}

type account struct {
	balance float64
	holding float64
	order   domain.Order
}

func readAccount(t tb, s store.Store, userID, symbol string, orderID int64) account {
	t.Helper()
	ctx := context.Background()
	var a account
	err := s.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		a.balance = u.Balance
		h, _, err := tx.GetHolding(ctx, userID, symbol)
		if err != nil {
			return err
		}
		a.holding = h.Amount
		if orderID != 0 {
			a.order, err = tx.GetOrder(ctx, orderID)
		}
		return err
	})
	if err != nil {
		t.Fatalf("read account: %v", err)
	}
	return a
}
