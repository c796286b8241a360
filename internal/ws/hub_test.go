package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	internalgrpc "github.com/mr1hm/go-sensor-alerts/internal/grpc"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
	"github.com/mr1hm/go-sensor-alerts/internal/ws"
)

const topic = "/topic/alerts"

// startHub runs a hub behind a test server and returns its ws:// URL.
func startHub(t *testing.T) (string, *ws.Hub, *internalgrpc.Broadcaster) {
	t.Helper()

	b := internalgrpc.NewBroadcaster()
	hub := ws.New(b, topic)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, b
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", n, hub.Count())
}

func TestHub_ForwardsAlerts(t *testing.T) {
	url, hub, b := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	// the hub subscribes asynchronously in Run
	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(topic, models.AlertMessage{ID: "a1", SensorName: "Lab", Severity: models.SeverityCritical})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var msg struct {
		Event string              `json:"event"`
		Topic string              `json:"topic"`
		Data  models.AlertMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Event != "alert" || msg.Topic != topic {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	if msg.Data.ID != "a1" || msg.Data.Severity != models.SeverityCritical {
		t.Errorf("unexpected alert: %+v", msg.Data)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	url, hub, _ := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_RefusesClientsAfterShutdown(t *testing.T) {
	b := internalgrpc.NewBroadcaster()
	hub := ws.New(b, topic)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	cancel()
	<-done

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 response, got %+v", resp)
	}
	if hub.Count() != 0 {
		t.Errorf("expected no registered clients, got %d", hub.Count())
	}
}
