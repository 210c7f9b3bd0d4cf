package handlers

import (
	"context"
	"net/http"
	"time"

	"auction-settlement/internal/domain"

	"github.com/labstack/echo/v4"
)

// ResponseError represents an error response body.
type ResponseError struct {
	Message string `json:"message"`
}

// HealthChecker reports whether the service's dependencies are reachable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Check(ctx context.Context) error { return f(ctx) }

type AcceptedBidResponse struct {
	Seq        int       `json:"seq"`
	BidderID   string    `json:"bidderId"`
	Amount     string    `json:"amount"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

type AuctionResponse struct {
	ID            string                `json:"id"`
	Description   string                `json:"description,omitempty"`
	Status        string                `json:"status"`
	StartTime     *time.Time            `json:"startTime,omitempty"`
	EndTime       *time.Time            `json:"endTime,omitempty"`
	HighestBid    string                `json:"highestBid"`
	HighestBidder string                `json:"highestBidder,omitempty"`
	BidCount      int                   `json:"bidCount"`
	AcceptedBids  []AcceptedBidResponse `json:"acceptedBids,omitempty"`
}

type StatsResponse struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Ended   int `json:"ended"`
}

type auctionHandler struct {
	ledger domain.Ledger
	health HealthChecker
}

// NewAuctionHandler registers the read-only admin routes on e.
func NewAuctionHandler(e *echo.Echo, ledger domain.Ledger, health HealthChecker) {
	h := &auctionHandler{
		ledger: ledger,
		health: health,
	}

	e.GET("/health", h.check)

	g := e.Group("/api/v1")
	g.GET("/auctions", h.listAuctions)
	g.GET("/auctions/:id", h.getAuction)
	g.GET("/stats", h.stats)
}

func (h *auctionHandler) check(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Check(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, ResponseError{Message: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"healthy": "ok",
	})
}

func (h *auctionHandler) listAuctions(c echo.Context) error {
	auctions := h.ledger.Auctions()
	resp := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, toAuctionResponse(a, false))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *auctionHandler) getAuction(c echo.Context) error {
	p := struct {
		ID string `param:"id"`
	}{}
	if err := c.Bind(&p); err != nil || p.ID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid auction id"})
	}

	a, ok := h.ledger.Auction(p.ID)
	if !ok {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "auction not found"})
	}
	return c.JSON(http.StatusOK, toAuctionResponse(a, true))
}

func (h *auctionHandler) stats(c echo.Context) error {
	s := h.ledger.Stats()
	return c.JSON(http.StatusOK, StatsResponse{Pending: s.Pending, Active: s.Active, Ended: s.Ended})
}

func toAuctionResponse(a domain.Auction, withBids bool) AuctionResponse {
	resp := AuctionResponse{
		ID:            a.ID,
		Description:   a.Description,
		Status:        a.Status.String(),
		HighestBid:    a.HighestBid.String(),
		HighestBidder: a.HighestBidder,
		BidCount:      len(a.AcceptedBids),
	}
	if !a.StartTime.IsZero() {
		resp.StartTime = &a.StartTime
	}
	if !a.EndTime.IsZero() {
		resp.EndTime = &a.EndTime
	}
	if withBids {
		for _, b := range a.AcceptedBids {
			resp.AcceptedBids = append(resp.AcceptedBids, AcceptedBidResponse{
				Seq:        b.Seq,
				BidderID:   b.BidderID,
				Amount:     b.Amount.String(),
				AcceptedAt: b.AcceptedAt,
			})
		}
	}
	return resp
}
