package domain

import "time"

// OrderSide indicates whether an order buys or sells.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a user instruction to buy or sell a symbol, either at the live
// price (market order, Price == nil) or once the price crosses a limit.
type Order struct {
	ID        int64
	UserID    string
	Symbol    string
	Side      OrderSide
	Price     *float64 // limit price, nil for market orders
	Amount    float64
	Status    OrderStatus
	CreatedAt time.Time
	ExecPrice *float64   // set when filled
	FilledAt  *time.Time // set when filled
}

// IsMarket reports whether the order carries no limit price.
func (o *Order) IsMarket() bool {
	return o.Price == nil
}

// IsFinal reports whether the order can no longer change state.
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

// Crosses reports whether the order would execute at the given price.
// Market orders always cross; a buy limit crosses at or below its limit and
// a sell limit at or above it.
func (o *Order) Crosses(price float64) bool {
	if o.Price == nil {
		return true
	}
	switch o.Side {
	case OrderSideBuy:
		return price <= *o.Price
	case OrderSideSell:
		return price >= *o.Price
	}
	return false
}
