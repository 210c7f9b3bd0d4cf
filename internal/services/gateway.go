package services

import (
	"context"
	"fmt"
	"sync"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/events"
	"auction-settlement/internal/notification"
	"auction-settlement/pkg/logger"
)

// Gateway forwards auction notifications from the bus to WebSocket clients.
// An auction's channels are subscribed while at least one client watches it,
// and a bidder's rejection channel while that bidder has a connection.
type Gateway struct {
	ctx         context.Context
	subscriber  domain.Subscriber
	publisher   domain.Publisher
	connections domain.ConnectionManager
	decoder     *events.Decoder
	encoder     *events.Encoder
	prefix      string
	bidChannel  string
	log         logger.Logger

	mutex   sync.Mutex
	watches map[string]context.CancelFunc // auction id or bidder channel -> subscription
	bidders map[string]int                // bidder id -> open connections
	wg      sync.WaitGroup
}

func NewGateway(
	ctx context.Context,
	subscriber domain.Subscriber,
	publisher domain.Publisher,
	connections domain.ConnectionManager,
	decoder *events.Decoder,
	encoder *events.Encoder,
	prefix, bidChannel string,
	log logger.Logger,
) *Gateway {
	return &Gateway{
		ctx:         ctx,
		subscriber:  subscriber,
		publisher:   publisher,
		connections: connections,
		decoder:     decoder,
		encoder:     encoder,
		prefix:      prefix,
		bidChannel:  bidChannel,
		log:         log,
		watches:     make(map[string]context.CancelFunc),
		bidders:     make(map[string]int),
	}
}

// Join registers conn as watching auctionID. bidderID may be empty for anonymous watchers.
func (g *Gateway) Join(auctionID, bidderID string, conn domain.WebSocketConnection) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.connections.RegisterConnection(conn.UserID(), auctionID, conn) {
		ch := notification.ChannelsFor(g.prefix, auctionID)
		g.watchLocked(auctionID, ch.Bids, ch.Winner)
	}
	if bidderID != "" {
		g.bidders[bidderID]++
		if g.bidders[bidderID] == 1 {
			rejections := notification.RejectionChannel(g.prefix, bidderID)
			g.watchLocked(rejections, rejections)
		}
	}
}

// Leave unregisters conn. The last watcher of an auction ends its subscription.
func (g *Gateway) Leave(auctionID, bidderID string, conn domain.WebSocketConnection) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.connections.UnregisterConnection(conn.UserID(), auctionID, conn) {
		g.unwatchLocked(auctionID)
	}
	if bidderID != "" && g.bidders[bidderID] > 0 {
		g.bidders[bidderID]--
		if g.bidders[bidderID] == 0 {
			delete(g.bidders, bidderID)
			g.unwatchLocked(notification.RejectionChannel(g.prefix, bidderID))
		}
	}
}

// SubmitBid forwards a signed bid from a client to the settlement channel.
func (g *Gateway) SubmitBid(ctx context.Context, bid domain.BidSubmitted) error {
	payload, err := g.encoder.Encode(bid)
	if err != nil {
		return err
	}
	if err := g.publisher.Publish(ctx, g.bidChannel, payload); err != nil {
		return fmt.Errorf("forward bid: %w", err)
	}
	return nil
}

// Watching reports the number of active bus subscriptions.
func (g *Gateway) Watching() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.watches)
}

// Wait blocks until every subscription has ended. Cancel the gateway context first.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) watchLocked(key string, channels ...string) {
	if _, exists := g.watches[key]; exists {
		return
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.watches[key] = cancel

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.subscriber.Subscribe(ctx, g.handleMessage, channels...); err != nil {
			g.log.Error("Notification subscription failed", "channels", channels, "error", err)
		}
	}()
	g.log.Info("Watching channels", "key", key, "channels", channels)
}

func (g *Gateway) unwatchLocked(key string) {
	if cancel, exists := g.watches[key]; exists {
		cancel()
		delete(g.watches, key)
		g.log.Info("Stopped watching channels", "key", key)
	}
}

func (g *Gateway) handleMessage(_ context.Context, channel string, payload []byte) {
	id, kind, ok := notification.ParseChannel(g.prefix, channel)
	if !ok {
		g.log.Warn("Message on unexpected channel", "channel", channel)
		return
	}
	msg, err := g.decoder.DecodeMessage(payload)
	if err != nil {
		g.log.Warn("Dropping undecodable notification", "channel", channel, "error", err)
		return
	}

	switch kind {
	case notification.KindBids:
		g.connections.BroadcastToAuction(id, msg)
	case notification.KindRejections:
		g.connections.NotifyUser(id, msg)
	case notification.KindWinner:
		g.connections.BroadcastToAuction(id, msg)
		g.connections.CloseAndUnregisterConnections(id)
		g.mutex.Lock()
		g.unwatchLocked(id)
		g.mutex.Unlock()
	}
}
