// Package ledger keeps the in-memory auction state machines.
//
// Every auction has its own mutex; the map of auctions is guarded separately and
// only held long enough to find or insert an entry, so operations on different
// auctions never wait on each other.
package ledger

import (
	"sort"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/shopspring/decimal"
)

type entry struct {
	mu      sync.Mutex
	auction domain.Auction
}

type MemoryLedger struct {
	mutex    sync.RWMutex
	auctions map[string]*entry
	now      func() time.Time
	log      logger.Logger
}

func NewMemoryLedger(log logger.Logger) *MemoryLedger {
	return &MemoryLedger{
		auctions: make(map[string]*entry),
		now:      time.Now,
		log:      log,
	}
}

func (l *MemoryLedger) lookup(auctionID string) *entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.auctions[auctionID]
}

func (l *MemoryLedger) CreateAuction(spec domain.AuctionSpec) domain.CreateOutcome {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.auctions[spec.ID]; exists {
		l.log.Warn("Ignoring duplicate auction", "auction_id", spec.ID)
		return domain.RejectedDuplicate
	}

	now := l.now()
	l.auctions[spec.ID] = &entry{auction: domain.Auction{
		ID:          spec.ID,
		Description: spec.Description,
		StartTime:   spec.StartTime,
		EndTime:     spec.EndTime,
		Status:      domain.StatusActive,
		HighestBid:  decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}

	l.log.Info("Auction created", "auction_id", spec.ID)
	return domain.Created
}

func (l *MemoryLedger) TryAcceptBid(auctionID, bidderID string, amount decimal.Decimal, onAccepted func(domain.AcceptedBid)) domain.BidOutcome {
	e := l.lookup(auctionID)
	if e == nil {
		return domain.BidRejectedUnknownAuction
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status != domain.StatusActive {
		return domain.BidRejectedNotActive
	}
	// Strictly greater: the first bid at a given amount stands.
	if !amount.GreaterThan(a.HighestBid) {
		return domain.BidRejectedNotHigher
	}

	now := l.now()
	accepted := domain.AcceptedBid{
		Seq:        len(a.AcceptedBids) + 1,
		BidderID:   bidderID,
		Amount:     amount,
		AcceptedAt: now,
	}
	a.AcceptedBids = append(a.AcceptedBids, accepted)
	a.HighestBid = amount
	a.HighestBidder = bidderID
	a.UpdatedAt = now

	if onAccepted != nil {
		onAccepted(accepted)
	}
	return domain.Accepted
}

func (l *MemoryLedger) CloseAuction(auctionID string, onClosed func(domain.Closing)) (domain.Closing, domain.CloseOutcome) {
	e := l.lookup(auctionID)
	if e == nil {
		return domain.Closing{AuctionID: auctionID}, domain.CloseRejectedUnknownAuction
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status == domain.StatusEnded {
		return domain.Closing{AuctionID: auctionID}, domain.CloseRejectedAlreadyEnded
	}

	now := l.now()
	a.Status = domain.StatusEnded
	a.UpdatedAt = now

	closing := domain.Closing{
		AuctionID: auctionID,
		WinnerID:  a.HighestBidder,
		Amount:    a.HighestBid,
		BidCount:  len(a.AcceptedBids),
		ClosedAt:  now,
	}

	outcome := domain.Closed
	if !closing.HasWinner() {
		outcome = domain.ClosedNoWinner
		closing.Amount = decimal.Zero
	}

	if onClosed != nil {
		onClosed(closing)
	}
	return closing, outcome
}

// Auction returns a copy of the auction; callers cannot reach ledger-owned memory.
func (l *MemoryLedger) Auction(auctionID string) (domain.Auction, bool) {
	e := l.lookup(auctionID)
	if e == nil {
		return domain.Auction{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(&e.auction), true
}

// Auctions returns copies of all auctions ordered by id.
func (l *MemoryLedger) Auctions() []domain.Auction {
	l.mutex.RLock()
	entries := make([]*entry, 0, len(l.auctions))
	for _, e := range l.auctions {
		entries = append(entries, e)
	}
	l.mutex.RUnlock()

	auctions := make([]domain.Auction, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		auctions = append(auctions, snapshot(&e.auction))
		e.mu.Unlock()
	}

	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
	return auctions
}

func (l *MemoryLedger) Stats() domain.LedgerStats {
	var stats domain.LedgerStats
	for _, a := range l.Auctions() {
		switch a.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusActive:
			stats.Active++
		case domain.StatusEnded:
			stats.Ended++
		}
	}
	return stats
}

func snapshot(a *domain.Auction) domain.Auction {
	out := *a
	out.AcceptedBids = append([]domain.AcceptedBid(nil), a.AcceptedBids...)
	return out
}
