package domain

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/shopspring/decimal"
)

// Ledger owns every auction record. Implementations serialize operations per auction id.
// The hooks run inside the auction's critical section, after the mutation is applied.
type Ledger interface {
	CreateAuction(spec AuctionSpec) CreateOutcome
	TryAcceptBid(auctionID, bidderID string, amount decimal.Decimal, onAccepted func(AcceptedBid)) BidOutcome
	CloseAuction(auctionID string, onClosed func(Closing)) (Closing, CloseOutcome)
	Auction(auctionID string) (Auction, bool)
	Auctions() []Auction
	Stats() LedgerStats
}

// Key registry
type KeyRegistry interface {
	PublicKey(ctx context.Context, bidderID string) (*rsa.PublicKey, error)
}

// Event interfaces
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type MessageHandler func(ctx context.Context, channel string, payload []byte)

type Subscriber interface {
	Subscribe(ctx context.Context, handler MessageHandler, channels ...string) error
}

// Notification interfaces
type Notifier interface {
	BidValidated(ctx context.Context, event BidValidated) error
	AuctionWinner(ctx context.Context, event AuctionWinner) error
	BidRejected(ctx context.Context, event BidRejected) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
	Lost() <-chan struct{}
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) (first bool)
	UnregisterConnection(userID, auctionID string, conn WebSocketConnection) (last bool)
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}

// ErrLeadershipLost is returned by consumers whose leadership term ended involuntarily.
var ErrLeadershipLost = errors.New("leadership lost")
