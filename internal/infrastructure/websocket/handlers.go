package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, CORS is handled in front
	},
}

// BiddingEngine is the part of the engine a socket drives.
type BiddingEngine interface {
	GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error)
	PlaceBid(ctx context.Context, identity domain.Identity, auctionID string, amount float64) (*domain.PlacedBid, error)
	LeadingBid(ctx context.Context, auctionID string) (*domain.LeadingBidSnapshot, error)
	TimeRemaining(auction *domain.Auction) time.Duration
}

// ConnectionRegistry is the subset of ConnectionManager a handler needs.
type ConnectionRegistry interface {
	RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error
	UnregisterIfCurrent(conn domain.WebSocketConnection)
}

type WebSocketHandler struct {
	engine      BiddingEngine
	connManager ConnectionRegistry
	clock       func() time.Time
	log         logger.Logger
}

func NewWebSocketHandler(engine BiddingEngine, connManager ConnectionRegistry, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		engine:      engine,
		connManager: connManager,
		clock:       time.Now,
		log:         log,
	}
}

// Amount stays raw until the message type is known, so a bad amount is
// answered with bid_error instead of failing the whole frame.
type clientMessage struct {
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n.Float64()
}

// HandleConnection upgrades GET /ws/auction/{auctionID} for an authenticated
// caller, sends the current leader and then serves place_bid and ping
// messages until the socket closes.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	identity := domain.IdentityFromContext(r.Context())
	if identity.IsZero() {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	auction, err := h.engine.GetAuction(r.Context(), auctionID)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if auction.Phase(h.clock()) == domain.PhaseClosed {
		h.log.Info("Rejected connection, auction has ended", "auction_id", auctionID)
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, identity.ID, auctionID, h.log)
	if err := h.connManager.RegisterConnection(identity.ID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		wsConn.Close()
		return
	}

	h.sendState(r.Context(), wsConn, auction)

	// The request context ends with the handler, the socket outlives it
	go h.handleMessages(context.WithoutCancel(r.Context()), wsConn, identity)
}

func (h *WebSocketHandler) sendState(ctx context.Context, conn *WebSocketConnection, auction *domain.Auction) {
	state := map[string]interface{}{
		"type":        "auction_state",
		"auction_id":  auction.ID,
		"current_bid": auction.HighestBid(),
		"bid_count":   len(auction.Bids),
		"end_time":    auction.EndTime,

		"time_remaining_ms": h.engine.TimeRemaining(auction).Milliseconds(),
	}
	if lead, ok := auction.LeadingBid(); ok {
		state["current_winner"] = lead.Bidder
	}
	// Prefer the cached leader when it has seen at least as many bids
	if snapshot, err := h.engine.LeadingBid(ctx, auction.ID); err == nil && snapshot.BidCount >= len(auction.Bids) {
		state["current_bid"] = snapshot.CurrentBid
		state["current_winner"] = snapshot.WinnerID
		state["bid_count"] = snapshot.BidCount
	}

	if err := conn.Send(state); err != nil {
		h.log.Warn("Failed to send auction state", "user_id", conn.UserID(), "error", err)
	}
}

func (h *WebSocketHandler) handleMessages(ctx context.Context, conn *WebSocketConnection, identity domain.Identity) {
	defer func() {
		h.connManager.UnregisterIfCurrent(conn)
		conn.Close()
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Socket read failed", "user_id", conn.UserID(), "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Send(map[string]string{"type": "error", "message": "malformed message"})
			continue
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(ctx, conn, identity, msg)
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		default:
			conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(ctx context.Context, conn *WebSocketConnection, identity domain.Identity, msg clientMessage) {
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		conn.Send(map[string]string{"type": "bid_error", "reason": "invalid_amount", "message": "invalid amount format"})
		return
	}

	placed, err := h.engine.PlaceBid(ctx, identity, conn.AuctionID(), amount)
	if err != nil {
		h.log.Debug("Bid not placed", "auction_id", conn.AuctionID(), "user_id", identity.ID, "error", err)
		conn.Send(map[string]string{"type": "bid_error", "reason": domain.RejectionReason(err), "message": err.Error()})
		return
	}

	conn.Send(map[string]interface{}{
		"type":        "bid_placed",
		"auction_id":  placed.AuctionID,
		"amount":      placed.Bid.Amount,
		"highest_bid": placed.HighestBid,
		"bid_count":   placed.BidCount,
		"placed_at":   placed.Bid.PlacedAt,
	})
}

// WebSocketConnection serializes writes; gorilla allows one concurrent writer.
type WebSocketConnection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	log       logger.Logger

	writeMu sync.Mutex
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

	wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	return wsc.conn.Close()
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
