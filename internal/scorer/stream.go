package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"fairroc/internal/storage"
)

// Stream subscribes to the scorer's WebSocket feed of labeled, scored
// instances. Received records feed the instance store for later calibration.
type Stream struct{ url string }

func NewStream(u string) Stream { return Stream{u} }

// ReconnectsCounter receives a signal on every reconnection attempt.
type ReconnectsCounter interface {
	WSReconnectsInc()
}

// Run consumes the stream until the context is cancelled, reconnecting with
// exponential backoff on failure. Parse errors are reported on the errors
// channel without tearing the connection down.
func (s Stream) Run(ctx context.Context, modelID string, out chan<- storage.ScoredInstance, errors chan<- error, ping time.Duration, reconnects ReconnectsCounter) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.streamOnce(ctx, modelID, out, errors, ping); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("Stream connection failed, reconnecting")
				if reconnects != nil {
					reconnects.WSReconnectsInc()
				}
				select {
				case errors <- fmt.Errorf("stream reconnect: %w", err):
				default:
				}

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (s Stream) streamOnce(ctx context.Context, modelID string, out chan<- storage.ScoredInstance, errors chan<- error, ping time.Duration) error {
	log.Info().Str("url", s.url).Str("model", modelID).Msg("Establishing stream connection")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer func() {
		conn.Close()
		log.Debug().Msg("Stream connection closed")
	}()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"model": modelID, "ch": "instances"}},
	}
	if err = conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	// Reads run in their own goroutine so the ping ticker fires even while
	// the connection is silent. Closing the connection on return unblocks
	// the pending read.
	done := make(chan struct{})
	defer close(done)
	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		case err := <-readErr:
			// Messages read before the failure are still handled.
			for {
				select {
				case msg := <-msgs:
					s.handleMessage(msg, modelID, out, errors)
					continue
				default:
				}
				break
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Stream closed normally")
				return err
			}
			return fmt.Errorf("read message failed: %w", err)
		case msg := <-msgs:
			s.handleMessage(msg, modelID, out, errors)
		}
	}
}

func (s Stream) handleMessage(msg []byte, modelID string, out chan<- storage.ScoredInstance, errors chan<- error) {
	var raw map[string]any
	if err := json.Unmarshal(msg, &raw); err != nil {
		log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse message")
		return
	}

	if op, ok := raw["op"].(string); ok && op == "subscribe" {
		if success, ok := raw["success"].(bool); ok && success {
			log.Info().Str("model", modelID).Msg("Subscribed to instance stream")
		} else {
			log.Warn().Interface("response", raw).Msg("Subscription may have failed")
		}
		return
	}

	if raw["ch"] != "instances" {
		return
	}
	if err := parseInstances(raw, out); err != nil {
		log.Debug().Err(err).Interface("raw_data", raw).Msg("Failed to parse instances")
		select {
		case errors <- fmt.Errorf("parse instances: %w", err):
		default:
		}
	}
}

func parseInstances(m map[string]any, out chan<- storage.ScoredInstance) error {
	data, ok := m["data"].([]any)
	if !ok || len(data) == 0 {
		return fmt.Errorf("invalid instance data format")
	}

	modelID, ok := m["model"].(string)
	if !ok || modelID == "" {
		return fmt.Errorf("missing model in instance message")
	}

	for _, item := range data {
		d, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("invalid instance item format")
		}

		score, err := toFloat(d["score"])
		if err != nil {
			return fmt.Errorf("invalid score: %w", err)
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("score out of range: %f", score)
		}

		label, ok := d["label"].(bool)
		if !ok {
			return fmt.Errorf("missing label in instance")
		}
		privileged, ok := d["privileged"].(bool)
		if !ok {
			return fmt.Errorf("missing privileged flag in instance")
		}

		var timestamp time.Time
		if ts, ok := d["ts"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				timestamp = parsed
			}
		}
		if timestamp.IsZero() {
			timestamp = time.Now()
		}

		inst := storage.ScoredInstance{
			ModelID:    modelID,
			Timestamp:  timestamp,
			Score:      score,
			Label:      label,
			Privileged: privileged,
		}

		select {
		case out <- inst:
		default:
			log.Warn().Str("model", modelID).Msg("instance channel full, dropping message")
		}
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return 0, fmt.Errorf("empty string")
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse string '%s' as float: %w", val, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("parsed value is not finite")
		}
		return f, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("value is not finite")
		}
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("value type %T is not convertible to float", v)
	}
}
