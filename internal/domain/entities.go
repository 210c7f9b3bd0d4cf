package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoWinner is the winner id announced when an auction closes without accepted bids.
const NoWinner = "none"

type Auction struct {
	ID            string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	Status        AuctionStatus
	HighestBid    decimal.Decimal
	HighestBidder string
	AcceptedBids  []AcceptedBid
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AuctionStatus int

const (
	StatusPending AuctionStatus = iota
	StatusActive
	StatusEnded
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// AcceptedBid is one entry of an auction's append-only acceptance log.
// Seq starts at 1 and reflects acceptance order.
type AcceptedBid struct {
	Seq        int
	BidderID   string
	Amount     decimal.Decimal
	AcceptedAt time.Time
}

// AuctionSpec carries the immutable attributes of a new auction.
type AuctionSpec struct {
	ID          string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

// Closing is the permanent winner record taken when an auction ends.
type Closing struct {
	AuctionID string
	WinnerID  string
	Amount    decimal.Decimal
	BidCount  int
	ClosedAt  time.Time
}

// HasWinner reports whether at least one bid was accepted before the close.
func (c Closing) HasWinner() bool {
	return c.WinnerID != ""
}

type LedgerStats struct {
	Pending int
	Active  int
	Ended   int
}
