// Package settlement authenticates bids, applies them to the ledger and
// announces the outcomes.
package settlement

import (
	"context"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/metrics"
	"auction-settlement/internal/signature"
	"auction-settlement/pkg/logger"
)

// Verdict is the terminal outcome of one submitted bid: "accepted" or the rejection reason.
type Verdict string

const Accepted Verdict = "accepted"

// Verifier authenticates the canonical encoding of a bid.
type Verifier interface {
	Verify(ctx context.Context, bidderID string, payload []byte, signature string) (signature.Result, error)
}

type Option func(*Engine)

// WithRejectionEvents makes the engine publish a BidRejected notification to the bidder.
func WithRejectionEvents(enabled bool) Option {
	return func(e *Engine) { e.publishRejections = enabled }
}

type Engine struct {
	ledger   domain.Ledger
	verifier Verifier
	notifier domain.Notifier
	metrics  metrics.Service
	log      logger.Logger

	publishRejections bool
}

func NewEngine(ledger domain.Ledger, verifier Verifier, notifier domain.Notifier, m metrics.Service, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		ledger:   ledger,
		verifier: verifier,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle dispatches one decoded event.
func (e *Engine) Handle(ctx context.Context, event domain.Event) {
	switch ev := event.(type) {
	case domain.AuctionStarted:
		e.HandleAuctionStarted(ctx, ev)
	case domain.BidSubmitted:
		e.HandleBidSubmitted(ctx, ev)
	case domain.AuctionEnded:
		e.HandleAuctionEnded(ctx, ev)
	}
}

func (e *Engine) HandleAuctionStarted(_ context.Context, ev domain.AuctionStarted) domain.CreateOutcome {
	outcome := e.ledger.CreateAuction(domain.AuctionSpec{
		ID:          ev.ID,
		Description: ev.Description,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
	})
	e.metrics.BumpSum("auctions.started", 1, "outcome", outcome.String())
	return outcome
}

func (e *Engine) HandleBidSubmitted(ctx context.Context, ev domain.BidSubmitted) Verdict {
	defer e.metrics.BumpTime("bids.time").End()

	payload := signature.Canonical(ev.AuctionID, ev.BidderID, ev.Amount)
	result, err := e.verifier.Verify(ctx, ev.BidderID, payload, ev.Signature)
	if result != signature.Valid {
		e.reject(ctx, ev, Verdict(result.String()), err)
		return Verdict(result.String())
	}

	outcome := e.ledger.TryAcceptBid(ev.AuctionID, ev.BidderID, ev.Amount, func(bid domain.AcceptedBid) {
		err := e.notifier.BidValidated(ctx, domain.BidValidated{
			AuctionID: ev.AuctionID,
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
		})
		if err != nil {
			e.log.Error("Failed to publish validated bid", "auction_id", ev.AuctionID, "bidder_id", bid.BidderID, "seq", bid.Seq, "error", err)
		}
	})
	if outcome != domain.Accepted {
		e.reject(ctx, ev, Verdict(outcome.String()), nil)
		return Verdict(outcome.String())
	}

	e.metrics.BumpSum("bids.accepted", 1)
	e.log.Info("Bid accepted", "auction_id", ev.AuctionID, "bidder_id", ev.BidderID, "amount", ev.Amount.String())
	return Accepted
}

func (e *Engine) reject(ctx context.Context, ev domain.BidSubmitted, reason Verdict, cause error) {
	e.metrics.BumpSum("bids.rejected", 1, "reason", string(reason))

	kv := []interface{}{"reason", string(reason), "auction_id", ev.AuctionID, "bidder_id", ev.BidderID, "amount", ev.Amount.String()}
	if cause != nil {
		kv = append(kv, "error", cause)
	}
	e.log.Warn("Bid rejected", kv...)

	if !e.publishRejections {
		return
	}
	err := e.notifier.BidRejected(ctx, domain.BidRejected{
		AuctionID: ev.AuctionID,
		BidderID:  ev.BidderID,
		Amount:    ev.Amount,
		Reason:    string(reason),
	})
	if err != nil {
		e.log.Error("Failed to publish bid rejection", "auction_id", ev.AuctionID, "bidder_id", ev.BidderID, "error", err)
	}
}

func (e *Engine) HandleAuctionEnded(ctx context.Context, ev domain.AuctionEnded) domain.CloseOutcome {
	_, outcome := e.ledger.CloseAuction(ev.ID, func(c domain.Closing) {
		winner := domain.AuctionWinner{AuctionID: c.AuctionID, WinnerID: c.WinnerID, Amount: c.Amount}
		if !c.HasWinner() {
			winner.WinnerID = domain.NoWinner
		}
		if err := e.notifier.AuctionWinner(ctx, winner); err != nil {
			e.log.Error("Failed to publish auction winner", "auction_id", c.AuctionID, "error", err)
		}
	})

	e.metrics.BumpSum("auctions.ended", 1, "outcome", outcome.String())
	if !outcome.Announces() {
		e.log.Warn("Ignoring auction end", "auction_id", ev.ID, "reason", outcome.String())
		return outcome
	}
	e.log.Info("Auction closed", "auction_id", ev.ID, "outcome", outcome.String())
	return outcome
}
