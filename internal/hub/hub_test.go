package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

type mockStore struct {
	mu       sync.Mutex
	readings models.Readings
}

func (m *mockStore) Snapshot() models.Readings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readings.Clone()
}

func startHub(t *testing.T, store Snapshotter) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	h := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	return ev
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", want, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWS_InitialSnapshot(t *testing.T) {
	store := &mockStore{readings: models.Readings{"1": models.SOC(17), "2": nil}}
	_, srv, _ := startHub(t, store)

	ev := readEvent(t, dial(t, srv))
	if ev.Event != UpdateEvent {
		t.Errorf("event = %q, want %q", ev.Event, UpdateEvent)
	}
	if ev.Data["1"] == nil || *ev.Data["1"] != 17 {
		t.Errorf("sensor 1: got %v", ev.Data["1"])
	}
	if v, ok := ev.Data["2"]; !ok || v != nil {
		t.Errorf("sensor 2: expected null, got %v (present=%v)", v, ok)
	}
}

func TestPublish_FansOutToAllViewers(t *testing.T) {
	store := &mockStore{readings: models.Readings{"1": nil}}
	h, srv, _ := startHub(t, store)

	a := dial(t, srv)
	b := dial(t, srv)
	readEvent(t, a)
	readEvent(t, b)
	waitClients(t, h, 2)

	if err := h.Publish(context.Background(), models.Readings{"1": models.SOC(55)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Data["1"] == nil || *ev.Data["1"] != 55 {
			t.Errorf("got %v, want 55", ev.Data["1"])
		}
	}
}

func TestServeWS_DisconnectUnregisters(t *testing.T) {
	h, srv, _ := startHub(t, &mockStore{readings: models.Readings{}})

	conn := dial(t, srv)
	readEvent(t, conn)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestPublish_AfterStop(t *testing.T) {
	h, _, cancel := startHub(t, &mockStore{readings: models.Readings{}})
	cancel()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	// fill the buffer so the only ready case is done
	for i := 0; i < sendBufferSize; i++ {
		h.broadcast <- []byte("x")
	}
	if err := h.Publish(context.Background(), models.Readings{}); err == nil {
		t.Error("expected error publishing to a stopped hub")
	}
}

func TestRun_ShutdownClosesViewers(t *testing.T) {
	h, srv, cancel := startHub(t, &mockStore{readings: models.Readings{}})

	conn := dial(t, srv)
	readEvent(t, conn)
	waitClients(t, h, 1)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
}
