package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/efreitasn/simmarket/internal/clock"
	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/store"
)

// Clock supplies the current (offset-corrected) time.
type Clock interface {
	Now() time.Time
}

// Options tunes the market loop. Zero values take the defaults below.
type Options struct {
	Volatility      float64
	UpdateInterval  time.Duration // default 180s
	TickInterval    time.Duration // default 1s
	ErrorBackoff    time.Duration // default 5s
	NewsProbability float64
	NewsTemplates   []string
	// Schedule reports whether the calendar says the market should be open.
	// Defaults to clock.IsTradingTime.
	Schedule func(time.Time) bool
	Rand     *rand.Rand
	Logger   *slog.Logger
}

func (o *Options) setDefaults() {
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = 180 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 5 * time.Second
	}
	if o.Schedule == nil {
		o.Schedule = clock.IsTradingTime
	}
	if o.Rand == nil {
		o.Rand = newRand()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// StatusReport describes the session for display.
type StatusReport struct {
	Now       time.Time
	Phase     clock.Phase
	Countdown time.Duration
	Schedule  string
	Open      bool
	Override  *bool
}

// Market owns the simulation state: live prices, candles and the session.
// A single lock guards all of it. The background loop started by Start is
// the only writer of prices, candles and automatic session transitions;
// callers may read prices, force the session open or closed, and request
// matching concurrently.
type Market struct {
	mu         sync.Mutex
	prices     map[string]float64
	candles    *CandleAggregator
	session    Session
	lastUpdate time.Time

	symbols *domain.SymbolSet
	codes   []string
	process *PriceProcess
	news    *NewsGenerator
	feed    *PriceFeed
	matcher *Matcher
	store   store.Store
	clock   Clock
	opts    Options
	logger  *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMarket seeds each symbol from its most recent persisted candle, or its
// configured initial price when there is none. Store errors while seeding
// are logged and the initial price is used.
func NewMarket(ctx context.Context, st store.Store, symbols *domain.SymbolSet, clk Clock, opts Options) *Market {
	opts.setDefaults()
	now := clk.Now()

	prices := make(map[string]float64, len(symbols.Codes()))
	for _, s := range symbols.All() {
		prices[s.Code] = s.InitialPrice
	}
	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, code := range symbols.Codes() {
			last, ok, err := tx.LatestHistory(ctx, code)
			if err != nil {
				return err
			}
			if ok && last.Close > 0 {
				prices[code] = last.Close
			}
		}
		return nil
	})
	if err != nil {
		opts.Logger.Error("failed to load price history", "error", err)
	}

	m := &Market{
		prices:     prices,
		candles:    NewCandleAggregator(prices, now),
		lastUpdate: now,
		symbols:    symbols,
		codes:      symbols.Codes(),
		process:    NewPriceProcess(opts.Volatility, opts.Rand),
		news:       NewNewsGenerator(symbols.Codes(), opts.NewsTemplates, opts.NewsProbability, opts.Rand),
		feed:       NewPriceFeed(),
		store:      st,
		clock:      clk,
		opts:       opts,
		logger:     opts.Logger,
	}
	m.matcher = NewMatcher(st, m, clk.Now, opts.Logger)
	return m
}

// Start launches the background loop. It stops when ctx is cancelled or
// Stop is called. Starting a running market is a no-op.
func (m *Market) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	go m.run(ctx, done)
}

// Stop signals the loop and blocks until it has exited. A tick already in
// progress runs to completion.
func (m *Market) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Market) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		wait := m.opts.TickInterval
		if err := m.safeTick(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("market tick failed", "error", err)
			wait = m.opts.ErrorBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Market) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return m.Tick(ctx)
}

// Tick runs one loop iteration: reconcile the session with the schedule,
// and while open, advance prices, flush candles, maybe publish news and
// match pending orders once every update interval.
func (m *Market) Tick(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.Lock()
	tr := m.session.Observe(m.opts.Schedule(now))
	m.mu.Unlock()

	if tr.Auto {
		m.logger.Info("market state auto-transition", "open", tr.Open)
		if tr.Open {
			if _, err := m.matcher.MatchOrders(ctx); err != nil {
				return err
			}
		}
	}
	if !tr.Open {
		return nil
	}

	m.mu.Lock()
	if now.Sub(m.lastUpdate) < m.opts.UpdateInterval {
		m.mu.Unlock()
		return nil
	}
	m.lastUpdate = now
	m.process.Advance(m.codes, m.prices)
	for _, code := range m.codes {
		m.candles.OnTick(code, m.prices[code])
	}
	update := PriceUpdate{At: now, Prices: m.copyPrices()}
	m.mu.Unlock()

	m.feed.Publish(update)

	if err := m.flushCandles(ctx, now); err != nil {
		return err
	}
	m.generateNews(ctx, now)

	_, err := m.matcher.MatchOrders(ctx)
	return err
}

// flushCandles persists every live candle stamped with its own period start
// and re-seeds them at the current prices. Snapshot and reset happen under
// one lock hold, so no executed volume falls between them; the store is
// written after the lock is released, so m.mu is never held while waiting
// on the store.
func (m *Market) flushCandles(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	snapshot := m.candles.Snapshot()
	m.candles.Reset(m.prices, now)
	m.mu.Unlock()

	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		for _, c := range snapshot {
			if err := tx.InsertMarketHistory(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flush candles: %w", err)
	}
	return nil
}

// generateNews stores a headline when the generator fires. Failures are
// logged only; news is cosmetic.
func (m *Market) generateNews(ctx context.Context, now time.Time) {
	n, ok := m.news.Maybe()
	if !ok {
		return
	}
	n.CreatedAt = now
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertNews(ctx, &n)
	})
	if err != nil {
		m.logger.Warn("failed to store news", "error", err)
		return
	}
	m.logger.Debug("news published", "symbol", n.Symbol, "news_id", n.ID)
}

func (m *Market) copyPrices() map[string]float64 {
	out := make(map[string]float64, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

// Quote returns the session state and a copy of the live prices.
func (m *Market) Quote() Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Quote{Open: m.session.IsOpen(), Prices: m.copyPrices()}
}

// AddVolume credits executed amount to the symbol's live candle.
func (m *Market) AddVolume(symbol string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles.AddVolume(symbol, amount)
}

// Prices returns a copy of the live prices.
func (m *Market) Prices() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyPrices()
}

// Price returns the live price of one symbol.
func (m *Market) Price(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	return p, ok
}

// Candles returns copies of the live candles ordered by symbol.
func (m *Market) Candles() []domain.Candle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candles.Snapshot()
}

// IsOpen returns the effective session state.
func (m *Market) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsOpen()
}

// SetOpen forces the market open or closed until the next automatic
// transition.
func (m *Market) SetOpen(open bool) {
	m.mu.Lock()
	m.session.SetOpen(open)
	m.mu.Unlock()
	m.logger.Info("market state manually set", "open", open)
}

// Status reports the calendar phase and the effective session state.
func (m *Market) Status() StatusReport {
	now := m.clock.Now()
	phase, countdown := clock.StatusAndCountdown(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	r := StatusReport{
		Now:       now.In(clock.Zone),
		Phase:     phase,
		Countdown: countdown,
		Schedule:  clock.Schedule,
		Open:      m.session.IsOpen(),
	}
	if v, ok := m.session.Override(); ok {
		r.Override = &v
	}
	return r
}

// Now returns the market's current time.
func (m *Market) Now() time.Time {
	return m.clock.Now()
}

// Symbols returns the tradable set.
func (m *Market) Symbols() *domain.SymbolSet {
	return m.symbols
}

// Feed returns the live price feed.
func (m *Market) Feed() *PriceFeed {
	return m.feed
}

// MatchOrders runs a matching pass over every pending order.
func (m *Market) MatchOrders(ctx context.Context) (MatchReport, error) {
	return m.matcher.MatchOrders(ctx)
}

// MatchSingleOrder evaluates one order immediately.
func (m *Market) MatchSingleOrder(ctx context.Context, id int64) (domain.Order, error) {
	return m.matcher.MatchSingleOrder(ctx, id)
}
