package websocket

import (
	"encoding/json"
	"sync"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"
)

// ConnectionManager tracks live sockets by auction and by user. A user holds
// at most one socket per auction; reconnecting replaces the old one.
type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	// Register by auction
	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	previous, replaced := cm.connections[auctionID][userID]
	cm.connections[auctionID][userID] = conn

	// Register by user
	if replaced {
		cm.userConns[userID] = removeConn(cm.userConns[userID], previous)
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
	}
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	// Remove from auction connections
	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}

	cm.dropUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// UnregisterIfCurrent removes conn only if it is still the registered socket,
// so a replaced socket shutting down does not evict its successor.
func (cm *ConnectionManager) UnregisterIfCurrent(conn domain.WebSocketConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns := cm.connections[conn.AuctionID()]
	if auctionConns[conn.UserID()] != conn {
		return
	}
	delete(auctionConns, conn.UserID())
	if len(auctionConns) == 0 {
		delete(cm.connections, conn.AuctionID())
	}
	cm.dropUserConn(conn.UserID(), conn.AuctionID())
}

func (cm *ConnectionManager) dropUserConn(userID, auctionID string) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var newConns []domain.WebSocketConnection
	for _, existingConn := range userConnections {
		if existingConn.AuctionID() != auctionID {
			newConns = append(newConns, existingConn)
		}
	}

	if len(newConns) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = newConns
	}
}

func removeConn(conns []domain.WebSocketConnection, target domain.WebSocketConnection) []domain.WebSocketConnection {
	out := conns[:0]
	for _, c := range conns {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	// Remove from auction connections
	if auctionConns, exists := cm.connections[auctionID]; exists {
		for userID, conn := range auctionConns {
			if err := conn.Close(); err != nil {
				cm.log.Error("Failed to close connection", "user_id", userID,
					"auction_id", auctionID, "error", err)
			}
			cm.dropUserConn(userID, auctionID)
		}
		delete(cm.connections, auctionID)
	}

	cm.log.Info("Connections closed for auction", "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	if auctionConns, exists := cm.connections[auctionID]; exists {
		for _, conn := range auctionConns {
			connections = append(connections, conn)
		}
	}

	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	if connections, exists := cm.userConns[userID]; exists {
		return append([]domain.WebSocketConnection(nil), connections...)
	}

	return nil
}

// BroadcastToAuction encodes message once and sends it to every socket of
// the auction. A failing socket does not stop the others.
func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))
	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(messageBytes)); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}

	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	connections := cm.GetConnectionsForUser(userID)

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for _, conn := range connections {
		if err := conn.Send(json.RawMessage(messageBytes)); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}

	return nil
}
