package domain

import "time"

// News is a flavor headline about a symbol.
type News struct {
	ID        int64
	Symbol    string
	Title     string
	Content   string
	CreatedAt time.Time
}
