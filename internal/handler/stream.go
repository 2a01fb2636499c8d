package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/efreitasn/simmarket/internal/engine"
	"github.com/efreitasn/simmarket/internal/service"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer       = 16
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamHandler pushes live price updates over a websocket.
type StreamHandler struct {
	feed      *engine.PriceFeed
	marketSvc *service.MarketService
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(feed *engine.PriceFeed, marketSvc *service.MarketService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		feed:      feed,
		marketSvc: marketSvc,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /api/stream. The first message is the current
// snapshot; every later message is one published price advance.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe(streamBuffer)
	defer cancel()

	// Inbound frames are discarded; a read error means the peer is gone.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	snapshot := engine.PriceUpdate{At: h.marketSvc.Status().Now, Prices: h.marketSvc.Prices()}
	if err := h.write(conn, snapshot); err != nil {
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, u); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, u engine.PriceUpdate) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(u)
}
