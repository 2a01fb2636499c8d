package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/simmarket/internal/clock"
	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/store"
)

const (
	DefaultKlineLimit  = 60
	MaxKlineLimit      = 1000
	DefaultHistoryDays = 3
	MaxHistoryDays     = 30
	TodayNewsLimit     = 10
)

// MarketService answers price, calendar, history and news queries, and
// lets admins force the session open or closed.
type MarketService struct {
	market  *engine.Market
	store   store.Store
	isAdmin func(string) bool
	logger  *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(market *engine.Market, st store.Store, isAdmin func(string) bool, logger *slog.Logger) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &MarketService{market: market, store: st, isAdmin: isAdmin, logger: logger}
}

// Prices returns the live price of every symbol.
func (s *MarketService) Prices() map[string]float64 {
	return s.market.Prices()
}

// Price returns the live price of one symbol.
func (s *MarketService) Price(symbol string) (float64, error) {
	code, err := s.resolve(symbol)
	if err != nil {
		return 0, err
	}
	p, _ := s.market.Price(code)
	return p, nil
}

// Status reports the calendar phase and session state.
func (s *MarketService) Status() engine.StatusReport {
	return s.market.Status()
}

// Symbols returns the tradable symbols in configured order.
func (s *MarketService) Symbols() []domain.Symbol {
	return s.market.Symbols().All()
}

// Symbol returns one symbol's description.
func (s *MarketService) Symbol(code string) (domain.Symbol, error) {
	c, err := s.resolve(code)
	if err != nil {
		return domain.Symbol{}, err
	}
	sym, _ := s.market.Symbols().Get(c)
	return sym, nil
}

// Kline returns the most recent persisted candles, oldest first. A limit
// outside 1..MaxKlineLimit falls back to DefaultKlineLimit.
func (s *MarketService) Kline(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	code, err := s.resolve(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxKlineLimit {
		limit = DefaultKlineLimit
	}
	return s.listHistory(ctx, code, time.Time{}, limit)
}

// History returns persisted candles over the last days days, oldest first.
// days is clamped to 1..MaxHistoryDays; zero means DefaultHistoryDays.
func (s *MarketService) History(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	code, err := s.resolve(symbol)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		days = DefaultHistoryDays
	}
	days = max(1, min(days, MaxHistoryDays))
	since := s.market.Now().AddDate(0, 0, -days)
	return s.listHistory(ctx, code, since, 0)
}

func (s *MarketService) listHistory(ctx context.Context, code string, since time.Time, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		candles, err = tx.ListHistory(ctx, code, since, limit)
		return err
	})
	return candles, err
}

// TodayNews returns up to TodayNewsLimit headlines since local midnight,
// newest first.
func (s *MarketService) TodayNews(ctx context.Context) ([]domain.News, error) {
	now := s.market.Now().In(clock.Zone)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, clock.Zone)

	var news []domain.News
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		news, err = tx.ListNews(ctx, midnight, TodayNewsLimit)
		return err
	})
	return news, err
}

// SetOpen forces the market open or closed until the next automatic
// transition.
func (s *MarketService) SetOpen(adminID string, open bool) (engine.StatusReport, error) {
	if !s.isAdmin(adminID) {
		return engine.StatusReport{}, domain.ErrForbidden
	}
	s.market.SetOpen(open)
	s.logger.Info("market override", "admin_id", adminID, "open", open)
	return s.market.Status(), nil
}

func (s *MarketService) resolve(symbol string) (string, error) {
	code := domain.Normalize(symbol)
	if !s.market.Symbols().Exists(code) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return code, nil
}
