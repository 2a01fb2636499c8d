package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/service"
	"github.com/go-chi/chi/v5"
)

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// marketResponse is the JSON response for GET /api/market.
type marketResponse struct {
	Prices map[string]float64 `json:"prices"`
	IsOpen bool               `json:"is_open"`
	Now    string             `json:"now"`
}

// statusResponse is the JSON response for GET /api/status.
type statusResponse struct {
	Now              string `json:"now"`
	Phase            string `json:"phase"`
	CountdownSeconds int64  `json:"countdown_seconds"`
	Schedule         string `json:"schedule"`
	IsOpen           bool   `json:"is_open"`
	ManualOverride   *bool  `json:"manual_override"`
}

// symbolResponse describes one tradable symbol.
type symbolResponse struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	InitialPrice float64 `json:"initial_price"`
	Price        float64 `json:"price"`
}

// newsResponse is one headline.
type newsResponse struct {
	NewsID    int64  `json:"news_id"`
	Symbol    string `json:"symbol"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// setMarketRequest is the JSON request body for POST /api/admin/market.
type setMarketRequest struct {
	Open *bool `json:"open"`
}

// GetMarket handles GET /api/market.
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	st := h.marketSvc.Status()
	WriteJSON(w, http.StatusOK, marketResponse{
		Prices: h.marketSvc.Prices(),
		IsOpen: st.Open,
		Now:    formatTime(st.Now),
	})
}

// GetStatus handles GET /api/status.
func (h *MarketHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, buildStatusResponse(h.marketSvc.Status()))
}

func buildStatusResponse(st engine.StatusReport) statusResponse {
	return statusResponse{
		Now:              formatTime(st.Now),
		Phase:            string(st.Phase),
		CountdownSeconds: int64(st.Countdown.Seconds()),
		Schedule:         st.Schedule,
		IsOpen:           st.Open,
		ManualOverride:   st.Override,
	}
}

// ListSymbols handles GET /api/symbols.
func (h *MarketHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	prices := h.marketSvc.Prices()
	symbols := h.marketSvc.Symbols()
	resp := make([]symbolResponse, len(symbols))
	for i, s := range symbols {
		resp[i] = symbolResponse{
			Code:         s.Code,
			Name:         s.Name,
			Description:  s.Description,
			InitialPrice: s.InitialPrice,
			Price:        prices[s.Code],
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetKline handles GET /api/kline/{symbol}?limit=.
func (h *MarketHandler) GetKline(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	candles, err := h.marketSvc.Kline(r.Context(), chi.URLParam(r, "symbol"), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCandles(candles))
}

// GetHistory handles GET /api/history/{symbol}?days=.
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	candles, err := h.marketSvc.History(r.Context(), chi.URLParam(r, "symbol"), days)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCandles(candles))
}

// GetNews handles GET /api/news.
func (h *MarketHandler) GetNews(w http.ResponseWriter, r *http.Request) {
	news, err := h.marketSvc.TodayNews(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	resp := make([]newsResponse, len(news))
	for i, n := range news {
		resp[i] = newsResponse{
			NewsID:    n.ID,
			Symbol:    n.Symbol,
			Title:     n.Title,
			Content:   n.Content,
			CreatedAt: formatTime(n.CreatedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SetMarket handles POST /api/admin/market.
func (h *MarketHandler) SetMarket(w http.ResponseWriter, r *http.Request) {
	var req setMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Open == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "open is required")
		return
	}

	st, err := h.marketSvc.SetOpen(r.Header.Get(AdminHeader), *req.Open)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildStatusResponse(st))
}

// queryInt parses an optional integer query parameter. Absent means zero.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", name+" must be an integer")
		return 0, false
	}
	return v, true
}
