package domain

import "time"

// DefaultBalance is the starting cash of a newly created user.
const DefaultBalance = 10000.0

// DustAmount is the holding size below which a position is not reported.
const DustAmount = 0.0001

// User is a participant of the simulated market.
type User struct {
	UserID    string
	Balance   float64
	CreatedAt time.Time
}

// Holding represents a user's position in a single symbol.
type Holding struct {
	UserID string
	Symbol string
	Amount float64
}

// IsDust reports whether the holding is too small to be shown.
func (h Holding) IsDust() bool {
	return h.Amount < DustAmount
}
