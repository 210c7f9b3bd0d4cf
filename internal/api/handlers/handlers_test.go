package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/ledger"
	"auction-settlement/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdmin(t *testing.T, health HealthChecker) (*echo.Echo, *ledger.MemoryLedger) {
	t.Helper()
	l := ledger.NewMemoryLedger(logger.NewNop())
	e := echo.New()
	NewAuctionHandler(e, l, health)
	return e, l
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e, _ := newAdmin(t, nil)
	assert.Equal(t, http.StatusOK, get(e, "/health").Code)

	e, _ = newAdmin(t, HealthCheckFunc(func(context.Context) error { return errors.New("redis unreachable") }))
	rec := get(e, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unreachable")
}

func TestGetAuction(t *testing.T) {
	e, l := newAdmin(t, nil)
	l.CreateAuction(domain.AuctionSpec{ID: "A1", Description: "lamp"})
	l.TryAcceptBid("A1", "u1", decimal.RequireFromString("50.50"), nil)
	l.TryAcceptBid("A1", "u2", decimal.NewFromInt(70), nil)

	rec := get(e, "/api/v1/auctions/A1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "A1", resp.ID)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, "70", resp.HighestBid)
	assert.Equal(t, "u2", resp.HighestBidder)
	require.Len(t, resp.AcceptedBids, 2)
	assert.Equal(t, "50.5", resp.AcceptedBids[0].Amount)
	assert.Equal(t, 2, resp.AcceptedBids[1].Seq)

	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/auctions/A9").Code)
}

func TestListAuctionsAndStats(t *testing.T) {
	e, l := newAdmin(t, nil)
	l.CreateAuction(domain.AuctionSpec{ID: "B"})
	l.CreateAuction(domain.AuctionSpec{ID: "A"})
	l.CloseAuction("B", nil)

	rec := get(e, "/api/v1/auctions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []AuctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].ID)
	assert.Equal(t, "ended", list[1].Status)
	assert.Empty(t, list[0].AcceptedBids)

	rec = get(e, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":0,"active":1,"ended":1}`, rec.Body.String())
}

func TestWebSocketHandlersHealth(t *testing.T) {
	router := mux.NewRouter()
	NewWebSocketHandlers(nil, logger.NewNop()).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
