package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/efreitasn/simmarket/internal/clock"
	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/store"
)

// SubmitOutcome tells the submitter what happened to the order right away.
type SubmitOutcome string

const (
	OutcomeFilled        SubmitOutcome = "filled"
	OutcomeCancelled     SubmitOutcome = "cancelled"
	OutcomePendingClosed SubmitOutcome = "pending_market_closed"
	OutcomePendingPrice  SubmitOutcome = "pending_price_not_reached"
)

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	UserID string
	Symbol string
	Side   domain.OrderSide
	Price  *float64 // nil for a market order
	Amount float64
}

// SubmitResult is the stored order plus the immediate outcome.
type SubmitResult struct {
	Order   domain.Order
	Outcome SubmitOutcome
}

// AssetHolding is one non-dust holding valued at the live price.
type AssetHolding struct {
	Symbol string
	Amount float64
	Price  float64
	Value  float64
}

// Assets is a user's balance and holdings.
type Assets struct {
	UserID     string
	Balance    float64
	Holdings   []AssetHolding
	TotalValue float64
}

// ReportLine aggregates one user's fills for a side and symbol.
type ReportLine struct {
	Side     domain.OrderSide
	Symbol   string
	Count    int
	Amount   float64
	Notional float64
}

// DailyReport summarizes a user's fills since local midnight.
type DailyReport struct {
	UserID string
	Date   string
	Lines  []ReportLine
	Prices map[string]float64
}

// TradingService handles order submission, cancellation and account
// queries on behalf of users.
type TradingService struct {
	market         *engine.Market
	store          store.Store
	defaultBalance float64
	isAdmin        func(string) bool
	logger         *slog.Logger
}

// NewTradingService creates a TradingService. isAdmin decides who may reset
// accounts.
func NewTradingService(market *engine.Market, st store.Store, defaultBalance float64, isAdmin func(string) bool, logger *slog.Logger) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &TradingService{
		market:         market,
		store:          st,
		defaultBalance: defaultBalance,
		isAdmin:        isAdmin,
		logger:         logger,
	}
}

// SubmitOrder validates the request, checks that the user can afford it at
// the estimated price, stores it as pending and attempts to match it
// immediately. Orders are accepted while the market is closed.
func (s *TradingService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitResult, error) {
	symbol, err := s.validateSubmit(&req)
	if err != nil {
		return nil, err
	}

	livePrice, _ := s.market.Price(symbol)
	estPrice := livePrice
	if req.Price != nil {
		estPrice = *req.Price
	}

	order := domain.Order{
		UserID:    req.UserID,
		Symbol:    symbol,
		Side:      req.Side,
		Price:     req.Price,
		Amount:    req.Amount,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.market.Now(),
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.GetOrCreateUser(ctx, req.UserID, s.defaultBalance)
		if err != nil {
			return err
		}
		switch req.Side {
		case domain.OrderSideBuy:
			if !domain.Covers(user.Balance, domain.Settle(estPrice, req.Amount).BuyCost()) {
				return domain.ErrInsufficientBalance
			}
		case domain.OrderSideSell:
			h, _, err := tx.GetHolding(ctx, req.UserID, symbol)
			if err != nil {
				return err
			}
			if h.Amount < req.Amount {
				return domain.ErrInsufficientHoldings
			}
		}
		return tx.InsertOrder(ctx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order submitted",
		"order_id", order.ID,
		"user_id", order.UserID,
		"symbol", order.Symbol,
		"side", order.Side,
		"amount", order.Amount,
		"market", order.IsMarket(),
	)

	matched, err := s.market.MatchSingleOrder(ctx, order.ID)
	if err != nil {
		// The order is stored; the next sweep picks it up.
		s.logger.Warn("immediate match failed", "order_id", order.ID, "error", err)
		matched = order
	}

	result := &SubmitResult{Order: matched}
	switch matched.Status {
	case domain.OrderStatusFilled:
		result.Outcome = OutcomeFilled
	case domain.OrderStatusCancelled:
		result.Outcome = OutcomeCancelled
	default:
		if s.market.IsOpen() {
			result.Outcome = OutcomePendingPrice
		} else {
			result.Outcome = OutcomePendingClosed
		}
	}
	return result, nil
}

func (s *TradingService) validateSubmit(req *SubmitOrderRequest) (string, error) {
	if req.UserID == "" {
		return "", &domain.ValidationError{Message: "user_id is required"}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return "", &domain.ValidationError{
			Message: fmt.Sprintf("Unknown side: %s. Must be one of: buy, sell", req.Side),
		}
	}
	symbol := domain.Normalize(req.Symbol)
	if !s.market.Symbols().Exists(symbol) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, req.Symbol)
	}
	if !(req.Amount > 0) || math.IsInf(req.Amount, 0) {
		return "", &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if req.Price != nil && (!(*req.Price > 0) || math.IsInf(*req.Price, 0)) {
		return "", &domain.ValidationError{Message: "price must be greater than 0"}
	}
	return symbol, nil
}

// CancelOrder cancels one of the user's own pending orders.
func (s *TradingService) CancelOrder(ctx context.Context, userID string, orderID int64) (*domain.Order, error) {
	var out domain.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return domain.ErrOrderNotFound
		}
		if o.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotCancellable
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCancelled
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOpenOrders returns the user's pending orders, oldest first.
func (s *TradingService) ListOpenOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	pending := domain.OrderStatusPending
	var orders []domain.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		orders, err = tx.ListOrdersByUser(ctx, userID, &pending, time.Time{})
		return err
	})
	return orders, err
}

// Assets returns the user's balance and non-dust holdings valued at live
// prices. Unknown users are created with the default balance.
func (s *TradingService) Assets(ctx context.Context, userID string) (*Assets, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Message: "user_id is required"}
	}
	prices := s.market.Prices()

	var (
		user     domain.User
		holdings []domain.Holding
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if user, err = tx.GetOrCreateUser(ctx, userID, s.defaultBalance); err != nil {
			return err
		}
		holdings, err = tx.ListHoldings(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	a := &Assets{UserID: userID, Balance: user.Balance, Holdings: make([]AssetHolding, 0, len(holdings))}
	a.TotalValue = user.Balance
	for _, h := range holdings {
		if h.IsDust() {
			continue
		}
		price := prices[h.Symbol]
		value := h.Amount * price
		a.Holdings = append(a.Holdings, AssetHolding{Symbol: h.Symbol, Amount: h.Amount, Price: price, Value: value})
		a.TotalValue += value
	}
	return a, nil
}

// ResetAccount restores a user to the default balance and deletes their
// holdings and orders. Only admins may call it.
func (s *TradingService) ResetAccount(ctx context.Context, adminID, userID string) error {
	if !s.isAdmin(adminID) {
		return domain.ErrForbidden
	}
	if userID == "" {
		return &domain.ValidationError{Message: "user_id is required"}
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.ResetUser(ctx, userID, s.defaultBalance)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account reset", "user_id", userID, "admin_id", adminID)
	return nil
}

// DailyReport aggregates the user's fills since local midnight.
func (s *TradingService) DailyReport(ctx context.Context, userID string) (*DailyReport, error) {
	now := s.market.Now().In(clock.Zone)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, clock.Zone)

	filled := domain.OrderStatusFilled
	var orders []domain.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		orders, err = tx.ListOrdersByUser(ctx, userID, &filled, midnight)
		return err
	})
	if err != nil {
		return nil, err
	}

	type key struct {
		side   domain.OrderSide
		symbol string
	}
	lines := make(map[key]*ReportLine)
	for _, o := range orders {
		k := key{o.Side, o.Symbol}
		l, ok := lines[k]
		if !ok {
			l = &ReportLine{Side: o.Side, Symbol: o.Symbol}
			lines[k] = l
		}
		l.Count++
		l.Amount += o.Amount
		switch {
		case o.ExecPrice != nil:
			l.Notional += *o.ExecPrice * o.Amount
		case o.Price != nil:
			l.Notional += *o.Price * o.Amount
		}
	}

	report := &DailyReport{
		UserID: userID,
		Date:   now.Format("2006-01-02"),
		Lines:  make([]ReportLine, 0, len(lines)),
		Prices: s.market.Prices(),
	}
	for _, l := range lines {
		report.Lines = append(report.Lines, *l)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		if report.Lines[i].Side != report.Lines[j].Side {
			return report.Lines[i].Side < report.Lines[j].Side
		}
		return report.Lines[i].Symbol < report.Lines[j].Symbol
	})
	return report, nil
}
