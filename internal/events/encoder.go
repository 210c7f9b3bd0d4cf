package events

import (
	"fmt"
	"time"

	"auction-settlement/internal/domain"

	"github.com/google/uuid"
)

// Encoder wraps domain events into Messages stamped with an event id and emission time.
type Encoder struct {
	codec Codec
	newID func() string
	now   func() time.Time
}

func NewEncoder(codec Codec) *Encoder {
	return &Encoder{codec: codec, newID: uuid.NewString, now: time.Now}
}

func (e *Encoder) Codec() Codec {
	return e.codec
}

func (e *Encoder) Encode(event interface{}) ([]byte, error) {
	msg, err := ToMessage(event)
	if err != nil {
		return nil, err
	}
	msg.EventID = e.newID()
	msg.EmittedAt = NewTimestamp(e.now())
	return e.codec.Marshal(msg)
}

// ToMessage maps a domain event onto its wire shape.
func ToMessage(event interface{}) (*Message, error) {
	switch ev := event.(type) {
	case domain.AuctionStarted:
		return &Message{
			Type:        string(domain.EventAuctionStarted),
			ID:          ev.ID,
			Description: ev.Description,
			StartTime:   NewTimestamp(ev.StartTime),
			EndTime:     NewTimestamp(ev.EndTime),
			Status:      statusActive,
		}, nil
	case domain.BidSubmitted:
		sig := ev.Signature
		return &Message{
			Type:      string(domain.EventBidSubmitted),
			AuctionID: ev.AuctionID,
			BidderID:  ev.BidderID,
			Amount:    NewAmount(ev.Amount),
			Signature: &sig,
		}, nil
	case domain.AuctionEnded:
		return &Message{
			Type:    string(domain.EventAuctionEnded),
			ID:      ev.ID,
			EndTime: NewTimestamp(ev.EndTime),
			Status:  statusEnded,
		}, nil
	case domain.BidValidated:
		return &Message{
			Type:      string(domain.EventBidValidated),
			AuctionID: ev.AuctionID,
			BidderID:  ev.BidderID,
			Amount:    NewAmount(ev.Amount),
		}, nil
	case domain.AuctionWinner:
		return &Message{
			Type:      string(domain.EventAuctionWinner),
			AuctionID: ev.AuctionID,
			WinnerID:  ev.WinnerID,
			Amount:    NewAmount(ev.Amount),
		}, nil
	case domain.BidRejected:
		return &Message{
			Type:      string(domain.EventBidRejected),
			AuctionID: ev.AuctionID,
			BidderID:  ev.BidderID,
			Amount:    NewAmount(ev.Amount),
			Reason:    ev.Reason,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, event)
	}
}
