package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *MemoryLedger {
	t.Helper()
	return NewMemoryLedger(logger.NewNop())
}

func amt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func startAuction(t *testing.T, l *MemoryLedger, id string) {
	t.Helper()
	outcome := l.CreateAuction(domain.AuctionSpec{
		ID:          id,
		Description: "vintage clock",
		StartTime:   time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	})
	require.Equal(t, domain.Created, outcome)
}

// requireConsistent checks the ledger invariants on a snapshot.
func requireConsistent(t *testing.T, a domain.Auction) {
	t.Helper()
	if len(a.AcceptedBids) == 0 {
		assert.True(t, a.HighestBid.IsZero(), "highest bid should be the sentinel")
		assert.Empty(t, a.HighestBidder)
		return
	}
	for i := 1; i < len(a.AcceptedBids); i++ {
		assert.True(t, a.AcceptedBids[i].Amount.GreaterThan(a.AcceptedBids[i-1].Amount),
			"accepted amounts must be strictly increasing: %s then %s", a.AcceptedBids[i-1].Amount, a.AcceptedBids[i].Amount)
		assert.Equal(t, a.AcceptedBids[i-1].Seq+1, a.AcceptedBids[i].Seq)
	}
	last := a.AcceptedBids[len(a.AcceptedBids)-1]
	assert.True(t, last.Amount.Equal(a.HighestBid))
	assert.Equal(t, last.BidderID, a.HighestBidder)
}

func TestCreateAuction(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")

	a, ok := l.Auction("A1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Equal(t, "vintage clock", a.Description)
	requireConsistent(t, a)
}

func TestCreateAuction_DuplicateIsNoOp(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")
	require.Equal(t, domain.Accepted, l.TryAcceptBid("A1", "u1", amt(50), nil))

	outcome := l.CreateAuction(domain.AuctionSpec{ID: "A1", Description: "replayed"})
	assert.Equal(t, domain.RejectedDuplicate, outcome)

	a, _ := l.Auction("A1")
	assert.Equal(t, "vintage clock", a.Description)
	assert.Len(t, a.AcceptedBids, 1)
	assert.True(t, a.HighestBid.Equal(amt(50)))
	assert.Len(t, l.Auctions(), 1)
}

func TestTryAcceptBid_Rules(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")

	assert.Equal(t, domain.BidRejectedUnknownAuction, l.TryAcceptBid("A9", "u1", amt(10), nil))
	assert.Equal(t, domain.BidRejectedNotHigher, l.TryAcceptBid("A1", "u1", amt(0), nil))
	assert.Equal(t, domain.BidRejectedNotHigher, l.TryAcceptBid("A1", "u1", amt(-5), nil))
	assert.Equal(t, domain.Accepted, l.TryAcceptBid("A1", "u1", amt(50), nil))
	assert.Equal(t, domain.BidRejectedNotHigher, l.TryAcceptBid("A1", "u2", amt(40), nil))
	// Ties are rejected; the earlier bid keeps the lead.
	assert.Equal(t, domain.BidRejectedNotHigher, l.TryAcceptBid("A1", "u2", amt(50), nil))
	assert.Equal(t, domain.Accepted, l.TryAcceptBid("A1", "u3", decimal.RequireFromString("50.01"), nil))

	a, _ := l.Auction("A1")
	requireConsistent(t, a)
	assert.Equal(t, "u3", a.HighestBidder)
	assert.Len(t, a.AcceptedBids, 2)
}

func TestTryAcceptBid_HookRunsOnAcceptOnly(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")

	var seen []domain.AcceptedBid
	hook := func(b domain.AcceptedBid) { seen = append(seen, b) }

	l.TryAcceptBid("A1", "u1", amt(10), hook)
	l.TryAcceptBid("A1", "u2", amt(5), hook)
	l.TryAcceptBid("A1", "u3", amt(20), hook)

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Seq)
	assert.Equal(t, "u1", seen[0].BidderID)
	assert.Equal(t, 2, seen[1].Seq)
	assert.Equal(t, "u3", seen[1].BidderID)
}

func TestCloseAuction(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")
	l.TryAcceptBid("A1", "u1", amt(50), nil)
	l.TryAcceptBid("A1", "u3", amt(70), nil)

	var hooked domain.Closing
	closing, outcome := l.CloseAuction("A1", func(c domain.Closing) { hooked = c })
	require.Equal(t, domain.Closed, outcome)
	assert.Equal(t, "u3", closing.WinnerID)
	assert.True(t, closing.Amount.Equal(amt(70)))
	assert.Equal(t, 2, closing.BidCount)
	assert.Equal(t, closing, hooked)

	// Bids after the close are never accepted.
	assert.Equal(t, domain.BidRejectedNotActive, l.TryAcceptBid("A1", "u4", amt(1000), nil))

	_, outcome = l.CloseAuction("A1", nil)
	assert.Equal(t, domain.CloseRejectedAlreadyEnded, outcome)

	a, _ := l.Auction("A1")
	assert.Equal(t, domain.StatusEnded, a.Status)
	assert.True(t, a.HighestBid.Equal(amt(70)))
	requireConsistent(t, a)
}

func TestCloseAuction_NoWinnerAndUnknown(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")

	closing, outcome := l.CloseAuction("A1", nil)
	assert.Equal(t, domain.ClosedNoWinner, outcome)
	assert.False(t, closing.HasWinner())
	assert.True(t, closing.Amount.IsZero())

	_, outcome = l.CloseAuction("A9", nil)
	assert.Equal(t, domain.CloseRejectedUnknownAuction, outcome)
}

func TestAuction_SnapshotIsIsolated(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")
	l.TryAcceptBid("A1", "u1", amt(10), nil)

	a, _ := l.Auction("A1")
	a.AcceptedBids[0].BidderID = "mallory"
	a.AcceptedBids = append(a.AcceptedBids, domain.AcceptedBid{BidderID: "mallory"})

	fresh, _ := l.Auction("A1")
	require.Len(t, fresh.AcceptedBids, 1)
	assert.Equal(t, "u1", fresh.AcceptedBids[0].BidderID)
}

func TestStats(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")
	startAuction(t, l, "A2")
	startAuction(t, l, "A3")
	l.CloseAuction("A2", nil)

	assert.Equal(t, domain.LedgerStats{Active: 2, Ended: 1}, l.Stats())
}

// Concurrent bids with distinct amounts in arbitrary order must converge on the maximum.
func TestTryAcceptBid_ConcurrentConvergesToMaximum(t *testing.T) {
	const bidders = 200

	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			l := newLedger(t)
			startAuction(t, l, "A1")

			rng := rand.New(rand.NewSource(int64(round)))
			order := rng.Perm(bidders)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for _, i := range order {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					if rng := i % 3; rng == 0 {
						time.Sleep(time.Duration(i%7) * time.Microsecond)
					}
					l.TryAcceptBid("A1", fmt.Sprintf("u%d", i+1), amt(int64(i+1)), nil)
				}(i)
			}
			close(start)
			wg.Wait()

			a, _ := l.Auction("A1")
			requireConsistent(t, a)
			assert.Equal(t, fmt.Sprintf("u%d", bidders), a.HighestBidder)
			assert.True(t, a.HighestBid.Equal(amt(bidders)))
		})
	}
}

// A close racing bids must leave a snapshot that agrees with the accepted log.
func TestCloseAuction_RacingBids(t *testing.T) {
	for round := 0; round < 50; round++ {
		l := newLedger(t)
		startAuction(t, l, "A1")

		var (
			wg      sync.WaitGroup
			closing domain.Closing
		)
		start := make(chan struct{})
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				l.TryAcceptBid("A1", fmt.Sprintf("u%d", i), amt(int64(i)), nil)
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			closing, _ = l.CloseAuction("A1", nil)
		}()
		close(start)
		wg.Wait()

		a, _ := l.Auction("A1")
		requireConsistent(t, a)
		assert.Equal(t, len(a.AcceptedBids), closing.BidCount)
		assert.Equal(t, a.HighestBidder, closing.WinnerID)
		if closing.HasWinner() {
			assert.True(t, a.HighestBid.Equal(closing.Amount))
		}
	}
}

func TestDifferentAuctionsDoNotBlock(t *testing.T) {
	l := newLedger(t)
	startAuction(t, l, "A1")
	startAuction(t, l, "A2")

	entered := make(chan struct{})
	release := make(chan struct{})
	go l.TryAcceptBid("A1", "u1", amt(10), func(domain.AcceptedBid) {
		close(entered)
		<-release
	})
	<-entered

	done := make(chan domain.BidOutcome, 1)
	go func() { done <- l.TryAcceptBid("A2", "u2", amt(10), nil) }()

	select {
	case outcome := <-done:
		assert.Equal(t, domain.Accepted, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("bid on A2 blocked behind A1's critical section")
	}
	close(release)
}
