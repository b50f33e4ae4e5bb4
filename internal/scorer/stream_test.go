package scorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fairroc/internal/storage"
)

func TestParseInstances(t *testing.T) {
	msg := map[string]any{
		"ch":    "instances",
		"model": "compas-race",
		"data": []any{
			map[string]any{
				"score":      0.62,
				"label":      true,
				"privileged": false,
				"ts":         "2026-03-01T10:00:00Z",
			},
			map[string]any{
				"score":      "0.31",
				"label":      false,
				"privileged": true,
			},
		},
	}

	out := make(chan storage.ScoredInstance, 2)
	if err := parseInstances(msg, out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	first := <-out
	if first.ModelID != "compas-race" || first.Score != 0.62 || !first.Label || first.Privileged {
		t.Errorf("Unexpected first instance: %+v", first)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, first.Timestamp)
	}

	second := <-out
	if second.Score != 0.31 || second.Label || !second.Privileged {
		t.Errorf("Unexpected second instance: %+v", second)
	}
	if second.Timestamp.IsZero() {
		t.Error("Expected fallback timestamp for instance without ts")
	}
}

func TestParseInstances_Errors(t *testing.T) {
	testCases := []struct {
		name string
		msg  map[string]any
	}{
		{"missing data", map[string]any{"ch": "instances", "model": "m"}},
		{"missing model", map[string]any{"ch": "instances", "data": []any{map[string]any{}}}},
		{"bad score", map[string]any{"model": "m", "data": []any{
			map[string]any{"score": "nope", "label": true, "privileged": true}}}},
		{"score out of range", map[string]any{"model": "m", "data": []any{
			map[string]any{"score": 1.4, "label": true, "privileged": true}}}},
		{"missing label", map[string]any{"model": "m", "data": []any{
			map[string]any{"score": 0.5, "privileged": true}}}},
		{"missing privileged", map[string]any{"model": "m", "data": []any{
			map[string]any{"score": 0.5, "label": true}}}},
	}

	out := make(chan storage.ScoredInstance, 1)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := parseInstances(tc.msg, out); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseInstances_FullChannelDropsMessage(t *testing.T) {
	msg := map[string]any{
		"model": "m",
		"data": []any{
			map[string]any{"score": 0.5, "label": true, "privileged": true},
		},
	}

	out := make(chan storage.ScoredInstance) // unbuffered, nobody reading
	if err := parseInstances(msg, out); err != nil {
		t.Errorf("Expected dropped message without error, got %v", err)
	}
}

func TestToFloat(t *testing.T) {
	testCases := []struct {
		name    string
		input   any
		want    float64
		wantErr bool
	}{
		{"float64", 0.5, 0.5, false},
		{"string", "0.25", 0.25, false},
		{"int", 1, 1.0, false},
		{"int64", int64(0), 0.0, false},
		{"empty string", "", 0, true},
		{"garbage string", "abc", 0, true},
		{"nil", nil, 0, true},
		{"bool", true, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toFloat(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %f, got %f", tc.want, got)
			}
		})
	}
}

func TestStreamOnce_ReceivesInstances(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Read the subscription request.
		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("Failed to read subscription: %v", err)
			return
		}
		if sub["op"] != "subscribe" {
			t.Errorf("Expected subscribe op, got %v", sub["op"])
		}

		conn.WriteJSON(map[string]any{"op": "subscribe", "success": true})
		conn.WriteJSON(map[string]any{
			"ch":    "instances",
			"model": "m",
			"data": []any{
				map[string]any{"score": 0.77, "label": true, "privileged": false},
			},
		})
		// Closing ends the client's read loop.
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	out := make(chan storage.ScoredInstance, 4)
	errs := make(chan error, 4)

	stream := NewStream(wsURL)
	err := stream.streamOnce(context.Background(), "m", out, errs, time.Minute)
	if err == nil {
		t.Fatal("Expected stream to end with close error")
	}

	select {
	case inst := <-out:
		if inst.Score != 0.77 || !inst.Label || inst.Privileged {
			t.Errorf("Unexpected instance: %+v", inst)
		}
	default:
		t.Fatal("Expected an instance on the output channel")
	}
}

func TestStreamOnce_PingsSilentConnection(t *testing.T) {
	pinged := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Stay silent after the subscription; close once a ping arrives.
		conn.SetPingHandler(func(string) error {
			select {
			case pinged <- struct{}{}:
			default:
			}
			return conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		})

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("Failed to read subscription: %v", err)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	out := make(chan storage.ScoredInstance, 1)
	errs := make(chan error, 1)

	stream := NewStream(wsURL)
	err := stream.streamOnce(context.Background(), "m", out, errs, 50*time.Millisecond)
	if err == nil {
		t.Fatal("Expected stream to end with close error")
	}

	select {
	case <-pinged:
	default:
		t.Fatal("Expected a keep-alive ping while the connection was silent")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := NewStream("ws://localhost:1/stream")
	out := make(chan storage.ScoredInstance, 1)
	errs := make(chan error, 1)

	err := stream.Run(ctx, "m", out, errs, time.Minute, nil)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
