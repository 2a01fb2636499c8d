// Package store is the storage collaborator of the market engine: an
// opaque transactional store over users, holdings, orders, candle history
// and news.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
)

// Store runs functions inside a transaction. If fn returns an error every
// change it made is discarded; otherwise all changes commit together.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	// GetOrCreateUser returns the user, creating it with initialBalance
	// if it does not exist yet.
	GetOrCreateUser(ctx context.Context, userID string, initialBalance float64) (domain.User, error)
	// GetUser returns domain.ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, userID string) (domain.User, error)
	UpdateBalance(ctx context.Context, userID string, balance float64) error
	// ResetUser sets the balance (creating the user if needed) and deletes
	// every holding and order the user owns.
	ResetUser(ctx context.Context, userID string, balance float64) error

	// GetHolding returns false when the user has never held the symbol.
	GetHolding(ctx context.Context, userID, symbol string) (domain.Holding, bool, error)
	UpsertHolding(ctx context.Context, h domain.Holding) error
	ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error)

	// InsertOrder assigns o.ID.
	InsertOrder(ctx context.Context, o *domain.Order) error
	// GetOrder returns domain.ErrOrderNotFound if the order does not exist.
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	// ListPendingOrders returns every pending order by ascending ID.
	ListPendingOrders(ctx context.Context) ([]domain.Order, error)
	// ListOrdersByUser returns the user's orders created at or after since,
	// by ascending ID. A nil status matches every status.
	ListOrdersByUser(ctx context.Context, userID string, status *domain.OrderStatus, since time.Time) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	// FillOrder marks the order filled and records the execution price.
	FillOrder(ctx context.Context, id int64, execPrice float64, filledAt time.Time) error

	InsertMarketHistory(ctx context.Context, c domain.Candle) error
	// LatestHistory returns the most recent persisted candle for symbol.
	LatestHistory(ctx context.Context, symbol string) (domain.Candle, bool, error)
	// ListHistory returns candles with PeriodStart >= since in chronological
	// order. When limit > 0 only the most recent limit candles are kept.
	ListHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Candle, error)

	// InsertNews assigns n.ID.
	InsertNews(ctx context.Context, n *domain.News) error
	// ListNews returns news created at or after since, newest first.
	ListNews(ctx context.Context, since time.Time, limit int) ([]domain.News, error)
}
