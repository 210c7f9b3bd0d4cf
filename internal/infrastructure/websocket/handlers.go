package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/events"
	"auction-settlement/internal/keyregistry"
	"auction-settlement/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Gateway is the part of the notification gateway the handler drives.
type Gateway interface {
	Join(auctionID, bidderID string, conn domain.WebSocketConnection)
	Leave(auctionID, bidderID string, conn domain.WebSocketConnection)
	SubmitBid(ctx context.Context, bid domain.BidSubmitted) error
}

type clientMessage struct {
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}

type WebSocketHandler struct {
	gateway Gateway
	log     logger.Logger
}

func NewWebSocketHandler(gateway Gateway, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
		log:     log,
	}
}

// HandleConnection serves /ws/auction/{auctionID}?bidder_id=<id>. Without a
// bidder_id the client only watches the auction and cannot bid.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]
	if auctionID == "" {
		http.Error(w, "auction id required", http.StatusBadRequest)
		return
	}

	bidderID := r.URL.Query().Get("bidder_id")
	if bidderID != "" && !keyregistry.ValidBidderID(bidderID) {
		http.Error(w, "invalid bidder_id", http.StatusBadRequest)
		return
	}
	userID := bidderID
	if userID == "" {
		userID = "watcher-" + uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	wsConn := NewWebSocketConnection(conn, userID, auctionID, h.log)
	h.gateway.Join(auctionID, bidderID, wsConn)

	go h.handleMessages(wsConn, bidderID)
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection, bidderID string) {
	defer func() {
		h.gateway.Leave(conn.auctionID, bidderID, conn)
		conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Failed to read message", "user_id", conn.userID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, bidderID, msg)
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		default:
			conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, bidderID string, msg clientMessage) {
	if bidderID == "" {
		conn.Send(map[string]string{"type": "error", "message": "bidder_id required to bid"})
		return
	}
	if !msg.Amount.IsPositive() || events.ValidateAmount(msg.Amount) != nil {
		conn.Send(map[string]string{"type": "error", "message": "invalid amount"})
		return
	}
	if msg.Signature == "" {
		conn.Send(map[string]string{"type": "error", "message": "signature required"})
		return
	}

	bid := domain.BidSubmitted{
		AuctionID: conn.auctionID,
		BidderID:  bidderID,
		Amount:    msg.Amount,
		Signature: msg.Signature,
	}
	if err := h.gateway.SubmitBid(context.Background(), bid); err != nil {
		h.log.Error("Failed to forward bid", "auction_id", conn.auctionID, "bidder_id", bidderID, "error", err)
		conn.Send(map[string]string{"type": "error", "message": "failed to place bid"})
		return
	}
	conn.Send(map[string]string{"type": "bid_submitted", "auctionId": conn.auctionID})
}

// WebSocketConnection serializes writes; gorilla connections allow one concurrent writer.
type WebSocketConnection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	log       logger.Logger

	writeMu sync.Mutex
	once    sync.Once
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string, log logger.Logger) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
		log:       log,
	}
}

func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	if err := wsc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return wsc.conn.WriteJSON(message)
}

// Close sends a close frame and closes the socket. Repeated calls are no-ops.
func (wsc *WebSocketConnection) Close() error {
	var err error
	wsc.once.Do(func() {
		wsc.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = wsc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		wsc.writeMu.Unlock()
		err = wsc.conn.Close()
	})
	return err
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
