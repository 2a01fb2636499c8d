package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/simmarket/internal/domain"
)

const btreeDegree = 32

type holdingKey struct {
	userID string
	symbol string
}

type historyRow struct {
	seq    int64
	candle domain.Candle
}

func userLess(a, b domain.User) bool { return a.UserID < b.UserID }

func holdingLess(a, b domain.Holding) bool {
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.Symbol < b.Symbol
}

func orderLess(a, b domain.Order) bool { return a.ID < b.ID }

func idLess(a, b int64) bool { return a < b }

// historyLess orders candles by symbol, then period start, then insertion.
func historyLess(a, b historyRow) bool {
	if a.candle.Symbol != b.candle.Symbol {
		return a.candle.Symbol < b.candle.Symbol
	}
	if !a.candle.PeriodStart.Equal(b.candle.PeriodStart) {
		return a.candle.PeriodStart.Before(b.candle.PeriodStart)
	}
	return a.seq < b.seq
}

func newsLess(a, b domain.News) bool { return a.ID < b.ID }

// memState is the full content of a MemoryStore. Every table is a B-tree so
// that a transaction can take a cheap copy-on-write clone at begin and the
// commit is a pointer swap.
type memState struct {
	users    *btree.BTreeG[domain.User]
	holdings *btree.BTreeG[domain.Holding]
	orders   *btree.BTreeG[domain.Order]
	pending  *btree.BTreeG[int64] // ids of pending orders
	history  *btree.BTreeG[historyRow]
	news     *btree.BTreeG[domain.News]

	nextOrderID int64
	nextNewsID  int64
	nextSeq     int64
}

func newMemState() memState {
	return memState{
		users:    btree.NewG[domain.User](btreeDegree, userLess),
		holdings: btree.NewG[domain.Holding](btreeDegree, holdingLess),
		orders:   btree.NewG[domain.Order](btreeDegree, orderLess),
		pending:  btree.NewG[int64](btreeDegree, idLess),
		history:  btree.NewG[historyRow](btreeDegree, historyLess),
		news:     btree.NewG[domain.News](btreeDegree, newsLess),
	}
}

func (s memState) clone() memState {
	return memState{
		users:       s.users.Clone(),
		holdings:    s.holdings.Clone(),
		orders:      s.orders.Clone(),
		pending:     s.pending.Clone(),
		history:     s.history.Clone(),
		news:        s.news.Clone(),
		nextOrderID: s.nextOrderID,
		nextNewsID:  s.nextNewsID,
		nextSeq:     s.nextSeq,
	}
}

// MemoryStore is a thread-safe in-memory Store. Transactions are fully
// serialized.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemState(),
		now:   time.Now,
	}
}

// WithTx runs fn against a private clone of the store and publishes the
// clone only if fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	state memState
	now   func() time.Time
}

func (t *memTx) GetOrCreateUser(_ context.Context, userID string, initialBalance float64) (domain.User, error) {
	if u, ok := t.state.users.Get(domain.User{UserID: userID}); ok {
		return u, nil
	}
	u := domain.User{UserID: userID, Balance: initialBalance, CreatedAt: t.now()}
	t.state.users.ReplaceOrInsert(u)
	return u, nil
}

func (t *memTx) GetUser(_ context.Context, userID string) (domain.User, error) {
	u, ok := t.state.users.Get(domain.User{UserID: userID})
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (t *memTx) UpdateBalance(_ context.Context, userID string, balance float64) error {
	u, ok := t.state.users.Get(domain.User{UserID: userID})
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Balance = balance
	t.state.users.ReplaceOrInsert(u)
	return nil
}

func (t *memTx) ResetUser(ctx context.Context, userID string, balance float64) error {
	if _, err := t.GetOrCreateUser(ctx, userID, balance); err != nil {
		return err
	}
	if err := t.UpdateBalance(ctx, userID, balance); err != nil {
		return err
	}

	var holdings []domain.Holding
	t.state.holdings.AscendGreaterOrEqual(domain.Holding{UserID: userID}, func(h domain.Holding) bool {
		if h.UserID != userID {
			return false
		}
		holdings = append(holdings, h)
		return true
	})
	for _, h := range holdings {
		t.state.holdings.Delete(h)
	}

	var orders []domain.Order
	t.state.orders.Ascend(func(o domain.Order) bool {
		if o.UserID == userID {
			orders = append(orders, o)
		}
		return true
	})
	for _, o := range orders {
		t.state.orders.Delete(o)
		t.state.pending.Delete(o.ID)
	}
	return nil
}

func (t *memTx) GetHolding(_ context.Context, userID, symbol string) (domain.Holding, bool, error) {
	h, ok := t.state.holdings.Get(domain.Holding{UserID: userID, Symbol: symbol})
	return h, ok, nil
}

func (t *memTx) UpsertHolding(_ context.Context, h domain.Holding) error {
	t.state.holdings.ReplaceOrInsert(h)
	return nil
}

func (t *memTx) ListHoldings(_ context.Context, userID string) ([]domain.Holding, error) {
	holdings := make([]domain.Holding, 0)
	t.state.holdings.AscendGreaterOrEqual(domain.Holding{UserID: userID}, func(h domain.Holding) bool {
		if h.UserID != userID {
			return false
		}
		holdings = append(holdings, h)
		return true
	})
	return holdings, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	t.state.nextOrderID++
	o.ID = t.state.nextOrderID
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t.now()
	}
	t.state.orders.ReplaceOrInsert(*o)
	if o.Status == domain.OrderStatusPending {
		t.state.pending.ReplaceOrInsert(o.ID)
	}
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	o, ok := t.state.orders.Get(domain.Order{ID: id})
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) ListPendingOrders(_ context.Context) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, t.state.pending.Len())
	t.state.pending.Ascend(func(id int64) bool {
		if o, ok := t.state.orders.Get(domain.Order{ID: id}); ok {
			orders = append(orders, o)
		}
		return true
	})
	return orders, nil
}

func (t *memTx) ListOrdersByUser(_ context.Context, userID string, status *domain.OrderStatus, since time.Time) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	t.state.orders.Ascend(func(o domain.Order) bool {
		if o.UserID != userID || o.CreatedAt.Before(since) {
			return true
		}
		if status != nil && o.Status != *status {
			return true
		}
		orders = append(orders, o)
		return true
	})
	return orders, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	o, ok := t.state.orders.Get(domain.Order{ID: id})
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	t.putOrder(o)
	return nil
}

func (t *memTx) FillOrder(_ context.Context, id int64, execPrice float64, filledAt time.Time) error {
	o, ok := t.state.orders.Get(domain.Order{ID: id})
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = domain.OrderStatusFilled
	o.ExecPrice = &execPrice
	o.FilledAt = &filledAt
	t.putOrder(o)
	return nil
}

// putOrder stores o and keeps the pending index in sync with its status.
func (t *memTx) putOrder(o domain.Order) {
	t.state.orders.ReplaceOrInsert(o)
	if o.Status == domain.OrderStatusPending {
		t.state.pending.ReplaceOrInsert(o.ID)
	} else {
		t.state.pending.Delete(o.ID)
	}
}

func (t *memTx) InsertMarketHistory(_ context.Context, c domain.Candle) error {
	t.state.nextSeq++
	t.state.history.ReplaceOrInsert(historyRow{seq: t.state.nextSeq, candle: c})
	return nil
}

func (t *memTx) LatestHistory(_ context.Context, symbol string) (domain.Candle, bool, error) {
	var latest domain.Candle
	var found bool
	t.state.history.AscendGreaterOrEqual(historyRow{candle: domain.Candle{Symbol: symbol}}, func(r historyRow) bool {
		if r.candle.Symbol != symbol {
			return false
		}
		latest = r.candle
		found = true
		return true
	})
	return latest, found, nil
}

func (t *memTx) ListHistory(_ context.Context, symbol string, since time.Time, limit int) ([]domain.Candle, error) {
	candles := make([]domain.Candle, 0)
	pivot := historyRow{candle: domain.Candle{Symbol: symbol, PeriodStart: since}}
	t.state.history.AscendGreaterOrEqual(pivot, func(r historyRow) bool {
		if r.candle.Symbol != symbol {
			return false
		}
		candles = append(candles, r.candle)
		return true
	})
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (t *memTx) InsertNews(_ context.Context, n *domain.News) error {
	t.state.nextNewsID++
	n.ID = t.state.nextNewsID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now()
	}
	t.state.news.ReplaceOrInsert(*n)
	return nil
}

func (t *memTx) ListNews(_ context.Context, since time.Time, limit int) ([]domain.News, error) {
	news := make([]domain.News, 0)
	t.state.news.Descend(func(n domain.News) bool {
		if limit > 0 && len(news) >= limit {
			return false
		}
		if !n.CreatedAt.Before(since) {
			news = append(news, n)
		}
		return true
	})
	return news, nil
}
