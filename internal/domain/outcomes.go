package domain

type CreateOutcome int

const (
	Created CreateOutcome = iota
	RejectedDuplicate
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case RejectedDuplicate:
		return "duplicate_auction"
	default:
		return "unknown"
	}
}

type BidOutcome int

const (
	Accepted BidOutcome = iota
	BidRejectedUnknownAuction
	BidRejectedNotActive
	BidRejectedNotHigher
)

func (o BidOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case BidRejectedUnknownAuction:
		return "unknown_auction"
	case BidRejectedNotActive:
		return "auction_not_active"
	case BidRejectedNotHigher:
		return "not_higher"
	default:
		return "unknown"
	}
}

type CloseOutcome int

const (
	Closed CloseOutcome = iota
	ClosedNoWinner
	CloseRejectedUnknownAuction
	CloseRejectedAlreadyEnded
)

func (o CloseOutcome) String() string {
	switch o {
	case Closed:
		return "closed"
	case ClosedNoWinner:
		return "closed_no_winner"
	case CloseRejectedUnknownAuction:
		return "unknown_auction"
	case CloseRejectedAlreadyEnded:
		return "already_ended"
	default:
		return "unknown"
	}
}

// Announces reports whether a close outcome produces a winner announcement.
func (o CloseOutcome) Announces() bool {
	return o == Closed || o == ClosedNoWinner
}
