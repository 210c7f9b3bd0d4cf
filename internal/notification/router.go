// Package notification routes settlement outcomes onto auction-scoped bus channels.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/events"
	"auction-settlement/internal/metrics"
	"auction-settlement/pkg/logger"
)

const (
	KindBids       = "bids"
	KindWinner     = "winner"
	KindRejections = "rejections"

	bidderSegment = "bidder"
)

// Channels are the outbound channels of one auction.
type Channels struct {
	Bids   string
	Winner string
}

// Router publishes notifications in the order it is called. It never buffers
// or reorders, so callers that serialize per auction get per-auction order.
type Router struct {
	publisher domain.Publisher
	encoder   *events.Encoder
	prefix    string
	timeout   time.Duration
	metrics   metrics.Service
	log       logger.Logger

	mutex    sync.RWMutex
	channels map[string]Channels
}

func NewRouter(publisher domain.Publisher, encoder *events.Encoder, prefix string, timeout time.Duration, m metrics.Service, log logger.Logger) *Router {
	return &Router{
		publisher: publisher,
		encoder:   encoder,
		prefix:    prefix,
		timeout:   timeout,
		metrics:   m,
		log:       log,
		channels:  make(map[string]Channels),
	}
}

// ChannelsFor returns the channel names of an auction, creating the mapping on first use.
func (r *Router) ChannelsFor(auctionID string) Channels {
	r.mutex.RLock()
	ch, ok := r.channels[auctionID]
	r.mutex.RUnlock()
	if ok {
		return ch
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if ch, ok := r.channels[auctionID]; ok {
		return ch
	}
	ch = ChannelsFor(r.prefix, auctionID)
	r.channels[auctionID] = ch
	return ch
}

// Forget drops the memoized mapping of an auction.
func (r *Router) Forget(auctionID string) {
	r.mutex.Lock()
	delete(r.channels, auctionID)
	r.mutex.Unlock()
}

func (r *Router) known() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.channels)
}

func (r *Router) RejectionChannel(bidderID string) string {
	return RejectionChannel(r.prefix, bidderID)
}

func (r *Router) BidValidated(ctx context.Context, event domain.BidValidated) error {
	return r.publish(ctx, r.ChannelsFor(event.AuctionID).Bids, KindBids, event)
}

// AuctionWinner publishes the winner and releases the auction's channel mapping.
func (r *Router) AuctionWinner(ctx context.Context, event domain.AuctionWinner) error {
	err := r.publish(ctx, r.ChannelsFor(event.AuctionID).Winner, KindWinner, event)
	r.Forget(event.AuctionID)
	return err
}

func (r *Router) BidRejected(ctx context.Context, event domain.BidRejected) error {
	return r.publish(ctx, r.RejectionChannel(event.BidderID), KindRejections, event)
}

func (r *Router) publish(ctx context.Context, channel, kind string, event interface{}) error {
	payload, err := r.encoder.Encode(event)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", kind, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.publisher.Publish(ctx, channel, payload); err != nil {
		r.metrics.BumpSum("notifications.err", 1, "kind", kind)
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	r.metrics.BumpSum("notifications.published", 1, "kind", kind)
	r.log.Debug("Notification published", "channel", channel, "kind", kind)
	return nil
}

// ChannelsFor derives the channel names of an auction under prefix.
func ChannelsFor(prefix, auctionID string) Channels {
	base := prefix + ":" + auctionID + ":"
	return Channels{Bids: base + KindBids, Winner: base + KindWinner}
}

func RejectionChannel(prefix, bidderID string) string {
	return prefix + ":" + bidderSegment + ":" + bidderID + ":" + KindRejections
}

// ParseChannel is the inverse of ChannelsFor and RejectionChannel. For a
// rejection channel the returned id is the bidder id.
func ParseChannel(prefix, channel string) (id, kind string, ok bool) {
	rest, found := strings.CutPrefix(channel, prefix+":")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", "", false
	}
	id, kind = rest[:idx], rest[idx+1:]

	switch kind {
	case KindBids, KindWinner:
		return id, kind, true
	case KindRejections:
		bidder, found := strings.CutPrefix(id, bidderSegment+":")
		if !found || bidder == "" {
			return "", "", false
		}
		return bidder, kind, true
	}
	return "", "", false
}
