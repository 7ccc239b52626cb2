package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/sitstraight/internal/adapters/ws"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type latestBox struct {
	v atomic.Pointer[posture.Metrics]
}

func (b *latestBox) get() (posture.Metrics, bool) {
	m := b.v.Load()
	if m == nil {
		return posture.Metrics{}, false
	}
	return *m, true
}

func (b *latestBox) set(m posture.Metrics) { b.v.Store(&m) }

func startHub(t *testing.T, box *latestBox, interval time.Duration) (string, *ws.Hub) {
	t.Helper()
	hub := ws.New(box.get, interval)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m ws.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitCount(hub *ws.Hub, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestHub_ConnectReceivesLatest(t *testing.T) {
	box := &latestBox{}
	box.set(posture.Metrics{Score: 88, State: posture.StateAligned})
	url, _ := startHub(t, box, 0)

	m := read(t, dial(t, url))
	if m.Event != ws.EventPosture {
		t.Errorf("event: got %q, want %q", m.Event, ws.EventPosture)
	}
	if m.Data.Score != 88 || m.Data.State != posture.StateAligned {
		t.Errorf("data: got %+v", m.Data)
	}
}

func TestHub_PublishReachesEveryClient(t *testing.T) {
	url, hub := startHub(t, &latestBox{}, 0)

	conns := []*websocket.Conn{dial(t, url), dial(t, url), dial(t, url)}
	if !waitCount(hub, 3) {
		t.Fatalf("Count: got %d, want 3", hub.Count())
	}

	hub.Publish(posture.Metrics{Score: 42, State: posture.StateSlouch})
	for i, c := range conns {
		if m := read(t, c); m.Data.Score != 42 {
			t.Errorf("client %d: got score %d", i, m.Data.Score)
		}
	}
}

func TestHub_PeriodicResend(t *testing.T) {
	box := &latestBox{}
	url, hub := startHub(t, box, 10*time.Millisecond)

	conn := dial(t, url)
	if !waitCount(hub, 1) {
		t.Fatal("client never registered")
	}
	box.set(posture.Metrics{Score: 70, State: posture.StateNeutral})

	if m := read(t, conn); m.Data.State != posture.StateNeutral {
		t.Errorf("state: got %q, want neutral", m.Data.State)
	}
}

func TestHub_CountDecreasesOnDisconnect(t *testing.T) {
	url, hub := startHub(t, &latestBox{}, 0)

	conn := dial(t, url)
	if !waitCount(hub, 1) {
		t.Fatal("client never registered")
	}
	_ = conn.Close()
	if !waitCount(hub, 0) {
		t.Errorf("Count after disconnect: got %d, want 0", hub.Count())
	}
}
