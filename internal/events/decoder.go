package events

import (
	"errors"
	"fmt"

	"auction-settlement/internal/domain"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")
)

const (
	statusActive = "active"
	statusEnded  = "ended"
)

// Decoder turns inbound payloads into the closed set of domain events.
type Decoder struct {
	codec    Codec
	validate *validator.Validate
}

func NewDecoder(codec Codec) *Decoder {
	return &Decoder{codec: codec, validate: validator.New()}
}

// DecodeMessage parses a payload without interpreting it.
func (d *Decoder) DecodeMessage(payload []byte) (*Message, error) {
	var msg Message
	if err := d.codec.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &msg, nil
}

// Decode parses and classifies an inbound event. Payloads without a type field
// are classified by shape: a signature marks a bid, status "active" a start and
// status "ended" an end.
func (d *Decoder) Decode(payload []byte) (domain.Event, error) {
	msg, err := d.DecodeMessage(payload)
	if err != nil {
		return nil, err
	}

	switch Classify(msg) {
	case domain.EventAuctionStarted:
		in := auctionStartedMessage{ID: msg.ID, Description: msg.Description, StartTime: msg.StartTime, EndTime: msg.EndTime}
		if err := d.check(&in); err != nil {
			return nil, err
		}
		return domain.AuctionStarted{
			ID:          in.ID,
			Description: in.Description,
			StartTime:   in.StartTime.value(),
			EndTime:     in.EndTime.value(),
		}, nil

	case domain.EventBidSubmitted:
		in := bidSubmittedMessage{AuctionID: msg.AuctionID, BidderID: msg.BidderID, Amount: msg.Amount}
		if msg.Signature != nil {
			in.Signature = *msg.Signature
		}
		if err := d.check(&in); err != nil {
			return nil, err
		}
		return domain.BidSubmitted{
			AuctionID: in.AuctionID,
			BidderID:  in.BidderID,
			Amount:    in.Amount.Decimal,
			Signature: in.Signature,
		}, nil

	case domain.EventAuctionEnded:
		in := auctionEndedMessage{ID: msg.ID, EndTime: msg.EndTime}
		if in.ID == "" {
			in.ID = msg.AuctionID
		}
		if err := d.check(&in); err != nil {
			return nil, err
		}
		return domain.AuctionEnded{ID: in.ID, EndTime: in.EndTime.value()}, nil
	}

	if msg.Type != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type)
	}
	return nil, fmt.Errorf("%w: untyped payload with status %q", ErrUnknownEventType, msg.Status)
}

// Classify returns the event type of msg, or "" when it cannot be determined.
func Classify(msg *Message) domain.EventType {
	if msg.Type != "" {
		return domain.EventType(msg.Type)
	}
	switch {
	case msg.Signature != nil:
		return domain.EventBidSubmitted
	case msg.Status == statusActive:
		return domain.EventAuctionStarted
	case msg.Status == statusEnded:
		return domain.EventAuctionEnded
	}
	return ""
}

func (d *Decoder) check(v interface{}) error {
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
