package wsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/HerbHall/sentineld/internal/broadcast"
	"github.com/HerbHall/sentineld/pkg/sensor"
)

func TestHandlerStreamsAnomalyResults(t *testing.T) {
	hub := broadcast.NewHub(nil)
	h := NewHandler(hub, nil)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/stream"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the subscriber before broadcasting.
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(sensor.AnomalyResult{SensorType: "temperature", CurrentValue: 42})

	var got sensor.AnomalyResult
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SensorType != "temperature" || got.CurrentValue != 42 {
		t.Errorf("unexpected payload: %+v", got)
	}
}
