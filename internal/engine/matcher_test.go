package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/store"
)

func newTestMatcher(open bool, price float64) (*Matcher, *fakeQuoter, *store.MemoryStore) {
	st := store.NewMemoryStore()
	q := newFakeQuoter(open, map[string]float64{"ZRB": price})
	clk := newFakeClock(testEpoch)
	return NewMatcher(st, q, clk.Now, nil), q, st
}

func TestMatcher_MarketBuyFills(t *testing.T) {
	m, q, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 10000, nil)
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 10})

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", o.Status)
	}
	if o.ExecPrice == nil || *o.ExecPrice != 100 {
		t.Errorf("ExecPrice = %v, want 100", o.ExecPrice)
	}
	if o.FilledAt == nil || !o.FilledAt.Equal(testEpoch) {
		t.Errorf("FilledAt = %v, want %v", o.FilledAt, testEpoch)
	}

	a := readAccount(t, st, "alice", "ZRB", id)
	if a.balance != 8999 {
		t.Errorf("balance = %v, want 8999", a.balance)
	}
	if a.holding != 10 {
		t.Errorf("holding = %v, want 10", a.holding)
	}
	if q.volume["ZRB"] != 10 {
		t.Errorf("volume = %v, want 10", q.volume["ZRB"])
	}
}

func TestMatcher_SellWithoutHoldingsCancels(t *testing.T) {
	m, q, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 8999, map[string]float64{"ZRB": 10})
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideSell, Price: ptr(90), Amount: 20})

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", o.Status)
	}

	a := readAccount(t, st, "alice", "ZRB", id)
	if a.balance != 8999 || a.holding != 10 {
		t.Errorf("account changed: balance %v holding %v", a.balance, a.holding)
	}
	if q.volume["ZRB"] != 0 {
		t.Errorf("volume = %v, want 0", q.volume["ZRB"])
	}
}

func TestMatcher_SellFillsAtProceeds(t *testing.T) {
	m, _, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 0, map[string]float64{"ZRB": 10})
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideSell, Amount: 4})

	if _, err := m.MatchSingleOrder(context.Background(), id); err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	a := readAccount(t, st, "alice", "ZRB", id)
	if a.balance != 399.6 {
		t.Errorf("balance = %v, want 399.6", a.balance)
	}
	if a.holding != 6 {
		t.Errorf("holding = %v, want 6", a.holding)
	}
}

func TestMatcher_InsufficientBalanceAtExecutionCancels(t *testing.T) {
	m, _, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 1000, nil)
	// 10 @ 100 costs 1001 with the fee.
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 10})

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", o.Status)
	}
	if a := readAccount(t, st, "alice", "ZRB", id); a.balance != 1000 || a.holding != 0 {
		t.Errorf("account changed: %+v", a)
	}
}

func TestMatcher_LimitCrossing(t *testing.T) {
	tests := []struct {
		name  string
		side  domain.OrderSide
		limit float64
		price float64
		want  domain.OrderStatus
	}{
		{"buy below limit", domain.OrderSideBuy, 100, 99, domain.OrderStatusFilled},
		{"buy at limit", domain.OrderSideBuy, 100, 100, domain.OrderStatusFilled},
		{"buy above limit", domain.OrderSideBuy, 100, 101, domain.OrderStatusPending},
		{"sell above limit", domain.OrderSideSell, 100, 101, domain.OrderStatusFilled},
		{"sell at limit", domain.OrderSideSell, 100, 100, domain.OrderStatusFilled},
		{"sell below limit", domain.OrderSideSell, 100, 99, domain.OrderStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, st := newTestMatcher(true, tt.price)
			seedUser(t, st, "alice", 10000, map[string]float64{"ZRB": 5})
			id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: tt.side, Price: ptr(tt.limit), Amount: 1})

			o, err := m.MatchSingleOrder(context.Background(), id)
			if err != nil {
				t.Fatalf("MatchSingleOrder: %v", err)
			}
			if o.Status != tt.want {
				t.Fatalf("status = %s, want %s", o.Status, tt.want)
			}
			if tt.want == domain.OrderStatusFilled && *o.ExecPrice != tt.price {
				t.Errorf("ExecPrice = %v, want live price %v", *o.ExecPrice, tt.price)
			}
		})
	}
}

func TestMatcher_ClosedMarketDoesNothing(t *testing.T) {
	m, _, st := newTestMatcher(false, 100)
	seedUser(t, st, "alice", 10000, nil)
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 1})

	report, err := m.MatchOrders(context.Background())
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if report.Evaluated != 0 {
		t.Errorf("Evaluated = %d, want 0 while closed", report.Evaluated)
	}
	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
}

func TestMatcher_MatchOrdersSweepsPending(t *testing.T) {
	m, q, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 10000, map[string]float64{"ZRB": 1})
	fill := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 2})
	wait := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Price: ptr(50), Amount: 1})
	cancel := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideSell, Amount: 30})

	report, err := m.MatchOrders(context.Background())
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	want := MatchReport{Evaluated: 3, Filled: 1, Cancelled: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	for id, status := range map[int64]domain.OrderStatus{
		fill:   domain.OrderStatusFilled,
		wait:   domain.OrderStatusPending,
		cancel: domain.OrderStatusCancelled,
	} {
		if got := readAccount(t, st, "alice", "ZRB", id).order.Status; got != status {
			t.Errorf("order %d status = %s, want %s", id, got, status)
		}
	}
	if q.volume["ZRB"] != 2 {
		t.Errorf("volume = %v, want 2", q.volume["ZRB"])
	}
}

func TestMatcher_FinalOrdersAreNotReevaluated(t *testing.T) {
	m, q, st := newTestMatcher(true, 100)
	seedUser(t, st, "alice", 10000, nil)
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 1})

	if _, err := m.MatchSingleOrder(context.Background(), id); err != nil {
		t.Fatalf("first match: %v", err)
	}
	before := readAccount(t, st, "alice", "ZRB", id)

	q.set(true, "ZRB", 1)
	for i := 0; i < 3; i++ {
		if _, err := m.MatchSingleOrder(context.Background(), id); err != nil {
			t.Fatalf("rematch: %v", err)
		}
		if _, err := m.MatchOrders(context.Background()); err != nil {
			t.Fatalf("sweep: %v", err)
		}
	}

	after := readAccount(t, st, "alice", "ZRB", id)
	if after.balance != before.balance || after.holding != before.holding {
		t.Errorf("rematching changed the account: %+v -> %+v", before, after)
	}
	if *after.order.ExecPrice != 100 {
		t.Errorf("ExecPrice rewritten to %v", *after.order.ExecPrice)
	}
	if q.volume["ZRB"] != 1 {
		t.Errorf("volume = %v, want 1", q.volume["ZRB"])
	}
}

func TestMatcher_UnknownUserLeavesOrderPending(t *testing.T) {
	m, _, st := newTestMatcher(true, 100)
	id := placeOrder(t, st, domain.Order{UserID: "ghost", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 1})

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
}

func TestMatcher_MatchSingleOrderNotFound(t *testing.T) {
	m, _, _ := newTestMatcher(true, 100)
	_, err := m.MatchSingleOrder(context.Background(), 42)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

// failingStore fails every transaction.
type failingStore struct{ err error }

func (s failingStore) WithTx(context.Context, func(store.Tx) error) error { return s.err }
func (s failingStore) Close() error                                      { return nil }

// beforeTxStore runs before each time a caller is granted the store, as if
// the caller had queued behind another writer.
type beforeTxStore struct {
	store.Store
	before func()
}

func (s beforeTxStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		s.before()
		return fn(tx)
	})
}

func TestMatcher_SingleOrderUsesPriceCurrentAtLock(t *testing.T) {
	st := store.NewMemoryStore()
	q := newFakeQuoter(true, map[string]float64{"ZRB": 100})
	seedUser(t, st, "alice", 10000, nil)
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 10})

	// Prices advance while the caller waits for the store.
	hooked := beforeTxStore{Store: st, before: func() { q.set(true, "ZRB", 120) }}
	m := NewMatcher(hooked, q, newFakeClock(testEpoch).Now, nil)

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.ExecPrice == nil || *o.ExecPrice != 120 {
		t.Fatalf("ExecPrice = %v, want 120", o.ExecPrice)
	}
	if a := readAccount(t, st, "alice", "ZRB", id); a.balance != 8798.8 {
		t.Errorf("balance = %v, want 8798.8", a.balance)
	}
}

func TestMatcher_SingleOrderSeesCloseAtLock(t *testing.T) {
	st := store.NewMemoryStore()
	q := newFakeQuoter(true, map[string]float64{"ZRB": 100})
	seedUser(t, st, "alice", 10000, nil)
	id := placeOrder(t, st, domain.Order{UserID: "alice", Symbol: "ZRB", Side: domain.OrderSideBuy, Amount: 10})

	hooked := beforeTxStore{Store: st, before: func() { q.set(false, "ZRB", 100) }}
	m := NewMatcher(hooked, q, newFakeClock(testEpoch).Now, nil)

	o, err := m.MatchSingleOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("MatchSingleOrder: %v", err)
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending once the market closed", o.Status)
	}
}

func TestMatcher_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	q := newFakeQuoter(true, map[string]float64{"ZRB": 100})
	m := NewMatcher(failingStore{err: boom}, q, nil, nil)

	if _, err := m.MatchOrders(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}
