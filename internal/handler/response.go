package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// mapError translates service errors into HTTP responses.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		WriteError(w, http.StatusNotFound, "symbol_not_found", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrOrderNotCancellable):
		WriteError(w, http.StatusConflict, "order_not_cancellable", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		WriteError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, domain.ErrInsufficientHoldings):
		WriteError(w, http.StatusConflict, "insufficient_holdings", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "Admin privileges required")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// formatTime renders t as RFC 3339 in the market's zone.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// orderResponse is the JSON form of an order. Price is null for market
// orders; exec_price and filled_at are null until filled.
type orderResponse struct {
	OrderID   int64    `json:"order_id"`
	UserID    string   `json:"user_id"`
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	Price     *float64 `json:"price"`
	Amount    float64  `json:"amount"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	ExecPrice *float64 `json:"exec_price"`
	FilledAt  *string  `json:"filled_at"`
}

func buildOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Price:     o.Price,
		Amount:    o.Amount,
		Status:    string(o.Status),
		CreatedAt: formatTime(o.CreatedAt),
		ExecPrice: o.ExecPrice,
		FilledAt:  formatTimePtr(o.FilledAt),
	}
}

// candleResponse is one persisted candle.
type candleResponse struct {
	Symbol      string  `json:"symbol"`
	PeriodStart string  `json:"period_start"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

func buildCandles(candles []domain.Candle) []candleResponse {
	out := make([]candleResponse, len(candles))
	for i, c := range candles {
		out[i] = candleResponse{
			Symbol:      c.Symbol,
			PeriodStart: formatTime(c.PeriodStart),
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
		}
	}
	return out
}
