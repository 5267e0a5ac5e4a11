package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/store"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type testConn struct {
	net.Conn
	r io.Reader
}

func (c testConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func dial(t *testing.T, srv *httptest.Server) testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, br, _, err := ws.Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	tc := testConn{Conn: conn, r: conn}
	if br != nil {
		tc.r = io.MultiReader(br, conn)
	}
	return tc
}

func readJSON(t *testing.T, c testConn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := wsutil.ReadServerText(c)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, system.Fixed{T: testNow}, zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		srv.Close()
	})
	return hub, srv
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	c := dial(t, srv)
	waitClients(t, hub, 1)

	require.NoError(t, wsutil.WriteClientText(c, []byte(`{"type":"unknown"}`)))
	require.NoError(t, wsutil.WriteClientText(c, []byte(`not json`)))
	require.NoError(t, wsutil.WriteClientText(c, []byte(`{"type":"ping"}`)))

	msg := readJSON(t, c)
	require.Equal(t, "pong", msg["type"])
	require.Equal(t, testNow.Format(time.RFC3339), msg["timestamp"])
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	hub.Notify("crawler", "session queued", "info")

	for _, c := range []testConn{a, b} {
		msg := readJSON(t, c)
		require.Equal(t, "system_message", msg["type"])
		require.Equal(t, "crawler", msg["channel"])
		require.Equal(t, "session queued", msg["message"])
		require.Equal(t, "info", msg["level"])
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{SendBuffer: 1}, nil, nil)
	server, peer := net.Pipe()
	defer peer.Close()
	c := &client{conn: server, send: make(chan []byte, 1), done: make(chan struct{})}
	require.True(t, hub.register(c))

	hub.Broadcast(map[string]string{"type": "one"})
	hub.Broadcast(map[string]string{"type": "two"})

	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not closed")
	}
	hub.unregister(c)
	require.Zero(t, hub.Clients())
}

func TestClientCloseUnregisters(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	c := dial(t, srv)
	waitClients(t, hub, 1)

	require.NoError(t, ws.WriteFrame(c, ws.MaskFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))))
	waitClients(t, hub, 0)
}

func TestCloseRejectsNewClients(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	c := dial(t, srv)
	waitClients(t, hub, 1)

	require.NoError(t, hub.Close(context.Background()))
	waitClients(t, hub, 0)
	require.Error(t, hub.Close(context.Background()))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := wsutil.ReadServerText(c)
	require.Error(t, err)
}

type fakeStats struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeStats) DashboardStats(context.Context, time.Time) (store.DashboardStats, error) {
	f.calls.Add(1)
	if f.fail {
		return store.DashboardStats{}, errors.New("db down")
	}
	return store.DashboardStats{TotalVessels: 42, TotalCompanies: 7}, nil
}

func TestRunStatsBroadcasts(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	c := dial(t, srv)
	waitClients(t, hub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeStats{}
	go hub.RunStats(ctx, src, 20*time.Millisecond, time.Second)

	msg := readJSON(t, c)
	require.Equal(t, "stats_update", msg["type"])
	data := msg["data"].(map[string]any)
	require.EqualValues(t, 42, data["total_vessels"])
}

func TestRunStatsBacksOffOnError(t *testing.T) {
	t.Parallel()

	hub, srv := newTestHub(t, Config{})
	dial(t, srv)
	waitClients(t, hub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeStats{fail: true}
	done := make(chan struct{})
	go func() {
		hub.RunStats(ctx, src, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, src.calls.Load())
	cancel()
	<-done
}
