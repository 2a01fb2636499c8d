package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/simmarket/internal/domain"
	"github.com/efreitasn/simmarket/internal/service"
	"github.com/go-chi/chi/v5"
)

// TradingHandler handles HTTP requests for orders and accounts.
type TradingHandler struct {
	tradingSvc *service.TradingService
}

// NewTradingHandler creates a new TradingHandler.
func NewTradingHandler(tradingSvc *service.TradingService) *TradingHandler {
	return &TradingHandler{tradingSvc: tradingSvc}
}

// submitOrderRequest is the JSON request body for POST /api/trade.
type submitOrderRequest struct {
	UserID string   `json:"user_id"`
	Symbol string   `json:"symbol"`
	Side   string   `json:"side"`
	Price  *float64 `json:"price"`
	Amount float64  `json:"amount"`
}

// submitOrderResponse pairs the stored order with what happened to it.
type submitOrderResponse struct {
	Outcome string        `json:"outcome"`
	Order   orderResponse `json:"order"`
}

type holdingResponse struct {
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
	Value  float64 `json:"value"`
}

type assetsResponse struct {
	UserID     string            `json:"user_id"`
	Balance    float64           `json:"balance"`
	Holdings   []holdingResponse `json:"holdings"`
	TotalValue float64           `json:"total_value"`
}

type orderListResponse struct {
	Data []orderResponse `json:"data"`
}

type reportLineResponse struct {
	Side     string  `json:"side"`
	Symbol   string  `json:"symbol"`
	Count    int     `json:"count"`
	Amount   float64 `json:"amount"`
	Notional float64 `json:"notional"`
}

type reportResponse struct {
	UserID string               `json:"user_id"`
	Date   string               `json:"date"`
	Lines  []reportLineResponse `json:"lines"`
	Prices map[string]float64   `json:"prices"`
}

// SubmitOrder handles POST /api/trade.
func (h *TradingHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.tradingSvc.SubmitOrder(r.Context(), service.SubmitOrderRequest{
		UserID: req.UserID,
		Symbol: req.Symbol,
		Side:   domain.OrderSide(req.Side),
		Price:  req.Price,
		Amount: req.Amount,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		Outcome: string(res.Outcome),
		Order:   buildOrderResponse(res.Order),
	})
}

// GetAssets handles GET /api/assets/{user_id}.
func (h *TradingHandler) GetAssets(w http.ResponseWriter, r *http.Request) {
	a, err := h.tradingSvc.Assets(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := assetsResponse{
		UserID:     a.UserID,
		Balance:    a.Balance,
		Holdings:   make([]holdingResponse, len(a.Holdings)),
		TotalValue: a.TotalValue,
	}
	for i, hd := range a.Holdings {
		resp.Holdings[i] = holdingResponse{Symbol: hd.Symbol, Amount: hd.Amount, Price: hd.Price, Value: hd.Value}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListOrders handles GET /api/users/{user_id}/orders. Only pending orders
// are listed.
func (h *TradingHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.tradingSvc.ListOpenOrders(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	resp := orderListResponse{Data: make([]orderResponse, len(orders))}
	for i, o := range orders {
		resp.Data[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// CancelOrder handles DELETE /api/users/{user_id}/orders/{order_id}.
func (h *TradingHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
		return
	}
	o, err := h.tradingSvc.CancelOrder(r.Context(), chi.URLParam(r, "user_id"), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(*o))
}

// GetReport handles GET /api/users/{user_id}/report.
func (h *TradingHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.tradingSvc.DailyReport(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	resp := reportResponse{
		UserID: rep.UserID,
		Date:   rep.Date,
		Lines:  make([]reportLineResponse, len(rep.Lines)),
		Prices: rep.Prices,
	}
	for i, l := range rep.Lines {
		resp.Lines[i] = reportLineResponse{
			Side:     string(l.Side),
			Symbol:   l.Symbol,
			Count:    l.Count,
			Amount:   l.Amount,
			Notional: l.Notional,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ResetUser handles POST /api/admin/users/{user_id}/reset.
func (h *TradingHandler) ResetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := h.tradingSvc.ResetAccount(r.Context(), r.Header.Get(AdminHeader), userID); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "reset"})
}
