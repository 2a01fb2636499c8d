package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/store"
)

// Quote is a consistent view of the session state and live prices.
type Quote struct {
	Open   bool
	Prices map[string]float64
}

// Quoter supplies live prices to the matcher and receives executed volume.
// Quote may be called inside a store transaction, so it must never wait on
// the store.
type Quoter interface {
	Quote() Quote
	AddVolume(symbol string, amount float64)
}

// MatchReport summarizes one matching pass.
type MatchReport struct {
	Evaluated int
	Filled    int
	Cancelled int
}

// Matcher executes pending orders against the live price. Every pass runs
// in one store transaction; executed volume is credited to the live candles
// only after that transaction commits.
type Matcher struct {
	store  store.Store
	quoter Quoter
	now    func() time.Time
	logger *slog.Logger
}

// NewMatcher creates a Matcher. A nil logger falls back to slog.Default().
func NewMatcher(st store.Store, quoter Quoter, now func() time.Time, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Matcher{store: st, quoter: quoter, now: now, logger: logger}
}

type fill struct {
	symbol string
	amount float64
}

// MatchOrders sweeps every pending order. While the market is closed it
// does nothing.
func (m *Matcher) MatchOrders(ctx context.Context) (MatchReport, error) {
	var report MatchReport
	q := m.quoter.Quote()
	if !q.Open {
		return report, nil
	}

	var fills []fill
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		report = MatchReport{}
		fills = fills[:0]

		orders, err := tx.ListPendingOrders(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			status, err := m.process(ctx, tx, o, q)
			if err != nil {
				return fmt.Errorf("order %d: %w", o.ID, err)
			}
			report.Evaluated++
			switch status {
			case domain.OrderStatusFilled:
				report.Filled++
				fills = append(fills, fill{symbol: o.Symbol, amount: o.Amount})
			case domain.OrderStatusCancelled:
				report.Cancelled++
			}
		}
		return nil
	})
	if err != nil {
		return MatchReport{}, fmt.Errorf("match orders: %w", err)
	}

	m.credit(fills)
	if report.Filled > 0 || report.Cancelled > 0 {
		m.logger.Info("matching pass complete",
			"evaluated", report.Evaluated,
			"filled", report.Filled,
			"cancelled", report.Cancelled,
		)
	}
	return report, nil
}

// MatchSingleOrder evaluates one order right away and returns it as it
// stands afterwards. Orders that are no longer pending are returned
// unchanged.
func (m *Matcher) MatchSingleOrder(ctx context.Context, id int64) (domain.Order, error) {
	var (
		result domain.Order
		filled bool
	)
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		filled = false
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		result = o
		if o.Status != domain.OrderStatusPending {
			return nil
		}
		// Quoted under the store lock so a price advance that landed while
		// waiting for it is seen.
		q := m.quoter.Quote()
		if !q.Open {
			return nil
		}

		status, err := m.process(ctx, tx, o, q)
		if err != nil {
			return err
		}
		if status != domain.OrderStatusPending {
			if result, err = tx.GetOrder(ctx, id); err != nil {
				return err
			}
		}
		filled = status == domain.OrderStatusFilled
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if filled {
		m.credit([]fill{{symbol: result.Symbol, amount: result.Amount}})
	}
	return result, nil
}

func (m *Matcher) credit(fills []fill) {
	for _, f := range fills {
		m.quoter.AddVolume(f.symbol, f.amount)
	}
}

// process decides whether o executes at the quoted price and, if so,
// settles it. It returns the resulting status.
func (m *Matcher) process(ctx context.Context, tx store.Tx, o domain.Order, q Quote) (domain.OrderStatus, error) {
	price, ok := q.Prices[o.Symbol]
	if !ok || price <= 0 {
		return o.Status, nil
	}
	if !o.Crosses(price) {
		return o.Status, nil
	}
	return m.execute(ctx, tx, o, price)
}

// execute settles o at price. A shortfall discovered here cancels the
// order; it is never re-queued.
func (m *Matcher) execute(ctx context.Context, tx store.Tx, o domain.Order, price float64) (domain.OrderStatus, error) {
	user, err := tx.GetUser(ctx, o.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return o.Status, nil
	}
	if err != nil {
		return "", err
	}

	s := domain.Settle(price, o.Amount)
	holding, _, err := tx.GetHolding(ctx, o.UserID, o.Symbol)
	if err != nil {
		return "", err
	}
	holding.UserID, holding.Symbol = o.UserID, o.Symbol

	switch o.Side {
	case domain.OrderSideBuy:
		cost := s.BuyCost()
		if !domain.Covers(user.Balance, cost) {
			return m.cancel(ctx, tx, o, "insufficient balance at execution")
		}
		if err := tx.UpdateBalance(ctx, o.UserID, domain.Debit(user.Balance, cost)); err != nil {
			return "", err
		}
		holding.Amount = domain.AddQuantity(holding.Amount, o.Amount)

	case domain.OrderSideSell:
		if holding.Amount < o.Amount {
			return m.cancel(ctx, tx, o, "insufficient holdings at execution")
		}
		holding.Amount = domain.SubQuantity(holding.Amount, o.Amount)
		if err := tx.UpdateBalance(ctx, o.UserID, domain.Credit(user.Balance, s.SellProceeds())); err != nil {
			return "", err
		}

	default:
		return o.Status, nil
	}

	if err := tx.UpsertHolding(ctx, holding); err != nil {
		return "", err
	}
	if err := tx.FillOrder(ctx, o.ID, price, m.now()); err != nil {
		return "", err
	}
	m.logger.Debug("order filled",
		"order_id", o.ID,
		"user_id", o.UserID,
		"symbol", o.Symbol,
		"side", o.Side,
		"amount", o.Amount,
		"price", price,
	)
	return domain.OrderStatusFilled, nil
}

func (m *Matcher) cancel(ctx context.Context, tx store.Tx, o domain.Order, reason string) (domain.OrderStatus, error) {
	if err := tx.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusCancelled); err != nil {
		return "", err
	}
	m.logger.Info("order cancelled",
		"order_id", o.ID,
		"user_id", o.UserID,
		"symbol", o.Symbol,
		"reason", reason,
	)
	return domain.OrderStatusCancelled, nil
}
