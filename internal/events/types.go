// Package events translates between bus payloads and domain events.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
)

// Message is the union of every event shape carried on the bus.
// Fields not used by a given type are left empty and omitted on encode.
type Message struct {
	Type      string     `json:"type,omitempty"`
	EventID   string     `json:"eventId,omitempty"`
	EmittedAt *Timestamp `json:"emittedAt,omitempty"`

	ID          string     `json:"id,omitempty"`
	Description string     `json:"description,omitempty"`
	StartTime   *Timestamp `json:"startTime,omitempty"`
	EndTime     *Timestamp `json:"endTime,omitempty"`
	Status      string     `json:"status,omitempty"`

	AuctionID string  `json:"auctionId,omitempty"`
	BidderID  string  `json:"bidderId,omitempty"`
	WinnerID  string  `json:"winnerId,omitempty"`
	Amount    *Amount `json:"amount,omitempty"`
	Signature *string `json:"signature,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Inbound shapes, checked with the validator after classification.

type auctionStartedMessage struct {
	ID          string `validate:"required"`
	Description string
	StartTime   *Timestamp
	EndTime     *Timestamp
}

type bidSubmittedMessage struct {
	AuctionID string  `validate:"required"`
	BidderID  string  `validate:"required"`
	Amount    *Amount `validate:"required"`
	Signature string  `validate:"required"`
}

type auctionEndedMessage struct {
	ID      string `validate:"required"`
	EndTime *Timestamp
}

// Bounds on amounts accepted from the wire. Canonical encoding and ledger
// comparisons expand the decimal in full, so the exponent must be capped
// before either runs.
const (
	MaxAmountIntegerDigits  = 18
	MaxAmountFractionDigits = 8

	maxAmountLiteral = 64
)

var errAmountOutOfRange = errors.New("amount out of range")

// ValidateAmount reports whether d fits within MaxAmountIntegerDigits integer
// digits and MaxAmountFractionDigits fractional digits.
func ValidateAmount(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	digits := int64(len(new(big.Int).Abs(d.Coefficient()).String()))

	fraction := int64(0)
	if exp < 0 {
		fraction = -exp
	}
	if fraction > MaxAmountFractionDigits || digits+exp > MaxAmountIntegerDigits {
		return fmt.Errorf("%w: at most %d integer and %d fractional digits",
			errAmountOutOfRange, MaxAmountIntegerDigits, MaxAmountFractionDigits)
	}
	return nil
}

// Amount is a decimal that encodes as a bare JSON number and decodes from
// either a number or a numeric string. Decoding enforces ValidateAmount.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) *Amount {
	return &Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("amount is null")
	}
	if len(data) > maxAmountLiteral {
		return fmt.Errorf("%w: literal too long", errAmountOutOfRange)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	if err := ValidateAmount(d); err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(a.String())
}

func (a *Amount) UnmarshalCBOR(data []byte) error {
	var v interface{}
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	var d decimal.Decimal
	switch x := v.(type) {
	case string:
		if len(x) > maxAmountLiteral {
			return fmt.Errorf("%w: literal too long", errAmountOutOfRange)
		}
		parsed, err := decimal.NewFromString(x)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		d = parsed
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
	case int64:
		d = decimal.NewFromInt(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: not a finite number", errAmountOutOfRange)
		}
		d = decimal.NewFromFloat(x)
	default:
		return fmt.Errorf("amount: unsupported CBOR value %T", v)
	}
	if err := ValidateAmount(d); err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// Timestamp accepts RFC 3339 strings or unix seconds, and encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{Time: t.UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return t.parseString(s)
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = unixSeconds(secs)
	return nil
}

func (t Timestamp) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalCBOR(data []byte) error {
	var v interface{}
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return t.parseString(x)
	case uint64:
		t.Time = time.Unix(int64(x), 0).UTC()
	case int64:
		t.Time = time.Unix(x, 0).UTC()
	case float64:
		t.Time = unixSeconds(x)
	case time.Time:
		t.Time = x.UTC()
	default:
		return fmt.Errorf("timestamp: unsupported CBOR value %T", v)
	}
	return nil
}

func (t *Timestamp) parseString(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

func unixSeconds(secs float64) time.Time {
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC()
}

func (t *Timestamp) value() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}
