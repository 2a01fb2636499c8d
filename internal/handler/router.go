package handler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHeader carries the caller's id on admin routes.
const AdminHeader = "X-Admin-ID"

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// NewRouter creates a chi router with all routes registered, request IDs,
// request logging, and Content-Type validation middleware.
func NewRouter(
	tradingSvc *service.TradingService,
	marketSvc *service.MarketService,
	feed *engine.PriceFeed,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestID)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	marketH := NewMarketHandler(marketSvc)
	tradingH := NewTradingHandler(tradingSvc)
	streamH := NewStreamHandler(feed, marketSvc, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Market routes.
		r.Get("/market", marketH.GetMarket)
		r.Get("/status", marketH.GetStatus)
		r.Get("/symbols", marketH.ListSymbols)
		r.Get("/kline/{symbol}", marketH.GetKline)
		r.Get("/history/{symbol}", marketH.GetHistory)
		r.Get("/news", marketH.GetNews)
		r.Get("/stream", streamH.Stream)

		// Account and order routes.
		r.Post("/trade", tradingH.SubmitOrder)
		r.Get("/assets/{user_id}", tradingH.GetAssets)
		r.Get("/users/{user_id}/orders", tradingH.ListOrders)
		r.Delete("/users/{user_id}/orders/{order_id}", tradingH.CancelOrder)
		r.Get("/users/{user_id}/report", tradingH.GetReport)

		// Admin routes.
		r.Post("/admin/market", marketH.SetMarket)
		r.Post("/admin/users/{user_id}/reset", tradingH.ResetUser)
	})

	return r
}

type requestIDKey struct{}

// requestID tags each request with an id, reusing a client supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the id assigned by the request ID middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFrom(r.Context())),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if !w.wroteHeader {
		w.status = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
