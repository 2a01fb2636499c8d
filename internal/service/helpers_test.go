package service

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/simmarket/internal/clock"
	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/store"
)

var testEpoch = time.Date(2025, 1, 6, 10, 0, 0, 0, clock.Zone)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

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

type testEnv struct {
	store   *store.MemoryStore
	market  *engine.Market
	clock   *fakeClock
	open    *atomic.Bool
	trading *TradingService
	markets *MarketService
}

func newTestEnv(t *testing.T, open bool) *testEnv {
	t.Helper()
	symbols, err := domain.NewSymbolSet([]domain.Symbol{
		{Code: "ZRB", Name: "Ziran Coin", InitialPrice: 100, Description: "house coin"},
		{Code: "STAR", Name: "Star Coin", InitialPrice: 50},
	})
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}

	st := store.NewMemoryStore()
	clk := &fakeClock{now: testEpoch}
	sched := &atomic.Bool{}
	sched.Store(open)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := engine.NewMarket(context.Background(), st, symbols, clk, engine.Options{
		Volatility: 0.02,
		Schedule:   func(time.Time) bool { return sched.Load() },
		Rand:       rand.New(rand.NewPCG(1, 2)),
		Logger:     logger,
	})
	env := &testEnv{
		store:  st,
		market: m,
		clock:  clk,
		open:   sched,
	}
	isAdmin := func(id string) bool { return id == "root" }
	env.trading = NewTradingService(m, st, domain.DefaultBalance, isAdmin, logger)
	env.markets = NewMarketService(m, st, isAdmin, logger)
	env.tick(t)
	return env
}

func (e *testEnv) tick(t *testing.T) {
	t.Helper()
	if err := e.market.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func (e *testEnv) assets(t *testing.T, userID string) *Assets {
	t.Helper()
	a, err := e.trading.Assets(context.Background(), userID)
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	return a
}

func (e *testEnv) order(t *testing.T, id int64) domain.Order {
	t.Helper()
	ctx := context.Background()
	var o domain.Order
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	return o
}

func holdingOf(a *Assets, symbol string) float64 {
	for _, h := range a.Holdings {
		if h.Symbol == symbol {
			return h.Amount
		}
	}
	return 0
}

func floatPtr(f float64) *float64 { return &f }
