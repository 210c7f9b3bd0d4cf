package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	userID    string
	auctionID string

	mutex  sync.Mutex
	sent   []interface{}
	closed int
}

func (c *stubConn) Send(message interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sent = append(c.sent, message)
	return nil
}

func (c *stubConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed++
	return nil
}

func (c *stubConn) UserID() string    { return c.userID }
func (c *stubConn) AuctionID() string { return c.auctionID }

func TestConnectionManagerRegistration(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	a := &stubConn{userID: "u1", auctionID: "A1"}
	b := &stubConn{userID: "u2", auctionID: "A1"}

	assert.True(t, cm.RegisterConnection("u1", "A1", a))
	assert.False(t, cm.RegisterConnection("u2", "A1", b))
	assert.Len(t, cm.GetConnectionsForAuction("A1"), 2)

	assert.False(t, cm.UnregisterConnection("u1", "A1", a))
	assert.False(t, cm.UnregisterConnection("u1", "A1", a), "second unregister is a no-op")
	assert.True(t, cm.UnregisterConnection("u2", "A1", b))
	assert.Empty(t, cm.GetConnectionsForAuction("A1"))
	assert.Empty(t, cm.GetConnectionsForUser("u2"))
}

func TestConnectionManagerReplacesReconnect(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	old := &stubConn{userID: "u1", auctionID: "A1"}
	fresh := &stubConn{userID: "u1", auctionID: "A1"}

	cm.RegisterConnection("u1", "A1", old)
	cm.RegisterConnection("u1", "A1", fresh)
	assert.Equal(t, 1, old.closed)
	assert.Equal(t, []domain.WebSocketConnection{fresh}, cm.GetConnectionsForUser("u1"))

	// The stale handler unregistering must not remove the new connection.
	assert.False(t, cm.UnregisterConnection("u1", "A1", old))
	assert.Len(t, cm.GetConnectionsForAuction("A1"), 1)
}

func TestConnectionManagerBroadcastAndClose(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	a := &stubConn{userID: "u1", auctionID: "A1"}
	b := &stubConn{userID: "u2", auctionID: "A1"}
	c := &stubConn{userID: "u1", auctionID: "A2"}
	cm.RegisterConnection("u1", "A1", a)
	cm.RegisterConnection("u2", "A1", b)
	cm.RegisterConnection("u1", "A2", c)

	require.NoError(t, cm.BroadcastToAuction("A1", "hello"))
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
	assert.Empty(t, c.sent)

	require.NoError(t, cm.NotifyUser("u1", "psst"))
	assert.Len(t, a.sent, 2)
	assert.Len(t, c.sent, 1)

	require.NoError(t, cm.CloseAndUnregisterConnections("A1"))
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Zero(t, c.closed)
	assert.Empty(t, cm.GetConnectionsForAuction("A1"))
	assert.Equal(t, []domain.WebSocketConnection{c}, cm.GetConnectionsForUser("u1"))
}

type recordingGateway struct {
	mutex  sync.Mutex
	joined []string
	left   []string
	bids   []domain.BidSubmitted
}

func (g *recordingGateway) Join(auctionID, bidderID string, conn domain.WebSocketConnection) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.joined = append(g.joined, auctionID+"/"+conn.UserID())
}

func (g *recordingGateway) Leave(auctionID, bidderID string, conn domain.WebSocketConnection) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.left = append(g.left, auctionID+"/"+conn.UserID())
}

func (g *recordingGateway) SubmitBid(_ context.Context, bid domain.BidSubmitted) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.bids = append(g.bids, bid)
	return nil
}

func (g *recordingGateway) snapshot() (joined, left []string, bids []domain.BidSubmitted) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return append([]string(nil), g.joined...), append([]string(nil), g.left...), append([]domain.BidSubmitted(nil), g.bids...)
}

func newTestServer(t *testing.T, gateway Gateway) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/ws/auction/{auctionID}", NewWebSocketHandler(gateway, logger.NewNop()).HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	var reply map[string]string
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestHandlerPlacesBid(t *testing.T) {
	gateway := &recordingGateway{}
	server := newTestServer(t, gateway)
	conn := dial(t, server, "/ws/auction/A1?bidder_id=u1")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readReply(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "50.50", "signature": "c2ln"}))
	assert.Equal(t, "bid_submitted", readReply(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": 0, "signature": "c2ln"}))
	assert.Equal(t, "invalid amount", readReply(t, conn)["message"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "1e20000000", "signature": "c2ln"}))
	assert.Equal(t, "invalid amount", readReply(t, conn)["message"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": 60}))
	assert.Equal(t, "signature required", readReply(t, conn)["message"])

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, left, _ := gateway.snapshot()
		return len(left) == 1
	}, 2*time.Second, 10*time.Millisecond)

	joined, left, bids := gateway.snapshot()
	assert.Equal(t, []string{"A1/u1"}, joined)
	assert.Equal(t, []string{"A1/u1"}, left)
	require.Len(t, bids, 1)
	assert.Equal(t, "A1", bids[0].AuctionID)
	assert.Equal(t, "u1", bids[0].BidderID)
	assert.Equal(t, "50.5", bids[0].Amount.String())
	assert.Equal(t, "c2ln", bids[0].Signature)
}

func TestHandlerWatcherCannotBid(t *testing.T) {
	gateway := &recordingGateway{}
	server := newTestServer(t, gateway)
	conn := dial(t, server, "/ws/auction/A1")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "10", "signature": "c2ln"}))
	assert.Equal(t, "bidder_id required to bid", readReply(t, conn)["message"])

	joined, _, bids := gateway.snapshot()
	require.Len(t, joined, 1)
	assert.True(t, strings.HasPrefix(joined[0], "A1/watcher-"))
	assert.Empty(t, bids)
}

func TestHandlerRejectsInvalidBidderID(t *testing.T) {
	server := newTestServer(t, &recordingGateway{})
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/auction/A1?bidder_id=..%2Fetc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
