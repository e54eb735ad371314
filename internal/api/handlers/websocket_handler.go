package handlers

import (
	"net/http"

	"bidding-engine/internal/infrastructure/websocket"
	"bidding-engine/pkg/logger"

	"github.com/gorilla/mux"
)

// WebSocketHandlers mounts the live bidding socket on a mux router.
type WebSocketHandlers struct {
	wsHandler *websocket.WebSocketHandler
}

func NewWebSocketHandlers(engine websocket.BiddingEngine, connManager *websocket.ConnectionManager, log logger.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		wsHandler: websocket.NewWebSocketHandler(engine, connManager, log),
	}
}

func (h *WebSocketHandlers) Register(router *mux.Router) {
	router.HandleFunc("/ws/auction/{auctionID}", h.HandleConnection).Methods(http.MethodGet)
}

func (h *WebSocketHandlers) HandleConnection(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}
