package handlers

import (
	"net/http"

	"auction-settlement/internal/infrastructure/websocket"
	"auction-settlement/pkg/logger"

	"github.com/gorilla/mux"
)

type WebSocketHandlers struct {
	wsHandler *websocket.WebSocketHandler
}

func NewWebSocketHandlers(gateway websocket.Gateway, log logger.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		wsHandler: websocket.NewWebSocketHandler(gateway, log),
	}
}

func (h *WebSocketHandlers) HandleConnection(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

// Register mounts the WebSocket endpoint and a liveness check on router.
func (h *WebSocketHandlers) Register(router *mux.Router) {
	router.HandleFunc("/ws/auction/{auctionID}", h.HandleConnection)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
}
