package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/net/websocket"

	"github.com/adreel/backend/internal/models"
)

// Topics name one realtime focus: a brand's trial requests or one chat session.
// A console subscribes to exactly one topic per connection; switching focus
// means closing the socket and dialing the new topic, so the old channel is
// torn down before the new one delivers anything.
func trialBrandTopic(brandID string) string { return "trial:brand:" + brandID }
func chatTopic(sessionID string) string     { return "chat:" + sessionID }

func validTopic(topic string) bool {
	return (strings.HasPrefix(topic, "trial:brand:") && len(topic) > len("trial:brand:")) ||
		(strings.HasPrefix(topic, "chat:") && len(topic) > len("chat:"))
}

type realtimeHub struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}

	// Optional cross-instance bridge. When set, emits go through Redis and
	// come back via the subscriber loop, so every instance (including this
	// one) delivers from the same ordered stream.
	redis *redis.Client
}

const redisEventChannel = "adreel:events"

func newRealtimeHub() *realtimeHub {
	return &realtimeHub{
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *realtimeHub) add(topic string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(topic) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[topic]
	if m == nil {
		m = make(map[*websocket.Conn]struct{})
		h.conns[topic] = m
	}
	m[c] = struct{}{}
}

func (h *realtimeHub) remove(topic string, c *websocket.Conn) {
	if h == nil || c == nil || strings.TrimSpace(topic) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[topic]
	if m == nil {
		return
	}
	delete(m, c)
	if len(m) == 0 {
		delete(h.conns, topic)
	}
}

func (h *realtimeHub) broadcast(topic string, msg []byte) {
	if h == nil || strings.TrimSpace(topic) == "" || len(msg) == 0 {
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, 8)
	for c := range h.conns[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := websocket.Message.Send(c, string(msg)); err != nil {
			_ = c.Close()
			h.remove(topic, c)
		}
	}
}

func (h *realtimeHub) count(topic string) int {
	if h == nil || strings.TrimSpace(topic) == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[topic])
}

func isLocalhostRemoteAddr(remoteAddr string) bool {
	host := remoteAddr
	if hp, _, err := net.SplitHostPort(remoteAddr); err == nil && hp != "" {
		host = hp
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// internalWSAllowed returns true if the request may open a WS connection.
// In production, set INTERNAL_WS_SECRET and send it via X-Internal-WS-Secret
// from the edge proxy that terminates user auth.
func internalWSAllowed(r *http.Request) bool {
	sec := strings.TrimSpace(os.Getenv("INTERNAL_WS_SECRET"))
	// Dev convenience: always allow localhost loopback connections.
	if isLocalhostRemoteAddr(r.RemoteAddr) {
		return true
	}
	if sec == "" {
		return false
	}
	return strings.TrimSpace(r.Header.Get("X-Internal-WS-Secret")) == sec
}

// realtimeEvent is the wire envelope for one row change. Row carries the full
// changed record; Table tags which entity it decodes into, so subscribers can
// reject shapes they do not recognize instead of trusting them.
type realtimeEvent struct {
	Table string          `json:"table"`
	Event string          `json:"event"` // INSERT | UPDATE | DELETE
	Topic string          `json:"topic"`
	At    string          `json:"at"`
	Row   json.RawMessage `json:"row,omitempty"`
}

// decodeEventRow decodes an event's row into its tagged entity struct.
// Unrecognized tables are an error for the caller to log and drop.
func decodeEventRow(ev realtimeEvent) (any, error) {
	switch ev.Table {
	case "trial_requests":
		var tr models.TrialRequest
		if err := json.Unmarshal(ev.Row, &tr); err != nil {
			return nil, err
		}
		return tr, nil
	case "chat_messages":
		var m models.ChatMessage
		if err := json.Unmarshal(ev.Row, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "chat_sessions":
		var s models.ChatSession
		if err := json.Unmarshal(ev.Row, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unrecognized realtime table %q", ev.Table)
	}
}

// EventsPing is a non-WS endpoint used to debug WS auth from the edge proxy.
func (h *Handler) EventsPing(w http.ResponseWriter, r *http.Request) {
	ok := internalWSAllowed(r)
	resp := map[string]any{"ok": ok, "remote": r.RemoteAddr}
	if !ok {
		writeJSON(w, http.StatusForbidden, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// EventsWebSocket streams row-change events for one topic.
//
// URL: /api/events/ws?topic=trial:brand:<brandId> | chat:<sessionId>
// Auth: X-Internal-WS-Secret (or localhost-only if INTERNAL_WS_SECRET is unset)
func (h *Handler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	if !internalWSAllowed(r) {
		log.Printf("[RealtimeWS] forbidden remote=%s host=%s", r.RemoteAddr, r.Host)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if !validTopic(topic) {
		http.Error(w, "missing_or_invalid_topic", http.StatusBadRequest)
		return
	}

	// x/net/websocket's default origin check 403s when Origin != Host; this
	// endpoint sits behind the edge proxy, so any origin is accepted here.
	wsServer := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			return nil
		},
		Handler: func(c *websocket.Conn) {
			log.Printf("[RealtimeWS] connect topic=%s remote=%s", topic, r.RemoteAddr)
			h.rt.add(topic, c)
			defer h.rt.remove(topic, c)
			defer log.Printf("[RealtimeWS] disconnect topic=%s remote=%s", topic, r.RemoteAddr)

			// Hello lets clients confirm which topic this channel serves.
			hello := realtimeEvent{
				Table: "hello",
				Event: "HELLO",
				Topic: topic,
				At:    time.Now().UTC().Format(time.RFC3339),
			}
			if b, err := json.Marshal(hello); err == nil {
				_ = websocket.Message.Send(c, string(b))
			}

			// Read loop keeps the connection open and detects disconnects.
			for {
				var ignored string
				if err := websocket.Message.Receive(c, &ignored); err != nil {
					break
				}
			}
		},
	}

	wsServer.ServeHTTP(w, r)
}

// emitRow fans one row change out to every subscriber of topic. With the Redis
// bridge enabled the event is published once and re-enters through the
// subscriber loop on every instance.
func (h *Handler) emitRow(topic, table, event string, row any) {
	if h == nil || h.rt == nil || strings.TrimSpace(topic) == "" {
		return
	}
	raw, err := json.Marshal(row)
	if err != nil {
		log.Printf("[Realtime] marshal_row_failed topic=%s table=%s err=%v", topic, table, err)
		return
	}
	ev := realtimeEvent{
		Table: table,
		Event: event,
		Topic: topic,
		At:    time.Now().UTC().Format(time.RFC3339),
		Row:   raw,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Realtime] marshal_failed topic=%s err=%v", topic, err)
		return
	}
	log.Printf("[Realtime] emit topic=%s table=%s event=%s subs=%d", topic, table, event, h.rt.count(topic))

	if h.rt.redis != nil {
		err := h.rt.redis.Publish(context.Background(), redisEventChannel, b).Err()
		if err == nil {
			return
		}
		// Local subscribers still get the event during a Redis outage; only
		// cross-instance delivery degrades.
		log.Printf("[Realtime] redis_publish_failed topic=%s err=%v", topic, err)
	}
	h.rt.broadcast(topic, b)
}

// EnableRedisBridge republishes emits through Redis and injects events
// published by other instances, keeping independently-connected dashboards
// consistent behind a load balancer. Call once at startup.
func (h *Handler) EnableRedisBridge(ctx context.Context, client *redis.Client) {
	if h == nil || h.rt == nil || client == nil {
		return
	}
	h.rt.redis = client

	go func() {
		pubsub := client.Subscribe(ctx, redisEventChannel)
		defer pubsub.Close()
		ch := pubsub.Channel()
		log.Printf("[Realtime] redis bridge subscribed channel=%s", redisEventChannel)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev realtimeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[Realtime] redis bridge bad payload: %v", err)
					continue
				}
				h.rt.broadcast(ev.Topic, []byte(msg.Payload))
			}
		}
	}()
}
