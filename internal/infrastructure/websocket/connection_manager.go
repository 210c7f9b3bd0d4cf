package websocket

import (
	"sync"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"
)

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

// RegisterConnection reports whether conn is the first connection watching the auction.
func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	first := len(cm.connections[auctionID]) == 0

	// Register by auction
	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	if previous, exists := cm.connections[auctionID][userID]; exists {
		cm.removeUserConnLocked(userID, previous)
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
	}
	cm.connections[auctionID][userID] = conn

	// Register by user
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID, "first", first)
	return first
}

// UnregisterConnection removes conn and reports whether the auction has no
// connections left. A connection that was already replaced or removed reports false.
func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string, conn domain.WebSocketConnection) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return false
	}
	if registered, exists := auctionConns[userID]; !exists || registered != conn {
		return false
	}

	delete(auctionConns, userID)
	cm.removeUserConnLocked(userID, conn)

	last := len(auctionConns) == 0
	if last {
		delete(cm.connections, auctionID)
	}

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID, "last", last)
	return last
}

func (cm *ConnectionManager) removeUserConnLocked(userID string, conn domain.WebSocketConnection) {
	userConnections := cm.userConns[userID]
	var newConns []domain.WebSocketConnection
	for _, existingConn := range userConnections {
		if existingConn != conn {
			newConns = append(newConns, existingConn)
		}
	}

	if len(newConns) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = newConns
	}
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for userID, conn := range cm.connections[auctionID] {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		} else {
			cm.log.Info("Closed connection", "user_id", userID, "auction_id", auctionID)
		}
		cm.removeUserConnLocked(userID, conn)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}

	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
			// Continue to other connections
		}
	}

	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}

	return nil
}
