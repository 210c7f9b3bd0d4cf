package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventAuctionStarted EventType = "auction_started"
	EventBidSubmitted   EventType = "bid_submitted"
	EventAuctionEnded   EventType = "auction_ended"
	EventBidValidated   EventType = "bid_validated"
	EventAuctionWinner  EventType = "auction_winner"
	EventBidRejected    EventType = "bid_rejected"
)

// Event is the closed set of inbound events the settlement engine reacts to.
// Only the types in this file implement it.
type Event interface {
	Type() EventType
	event()
}

type AuctionStarted struct {
	ID          string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

type BidSubmitted struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	Signature string
}

type AuctionEnded struct {
	ID      string
	EndTime time.Time
}

func (AuctionStarted) Type() EventType { return EventAuctionStarted }
func (BidSubmitted) Type() EventType   { return EventBidSubmitted }
func (AuctionEnded) Type() EventType   { return EventAuctionEnded }

func (AuctionStarted) event() {}
func (BidSubmitted) event()   {}
func (AuctionEnded) event()   {}

// Outbound notifications.

type BidValidated struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
}

type AuctionWinner struct {
	AuctionID string
	WinnerID  string
	Amount    decimal.Decimal
}

type BidRejected struct {
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	Reason    string
}
