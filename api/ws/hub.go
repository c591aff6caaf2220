package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the JSON envelope exchanged with clients. Client ops:
// subscribe, unsubscribe, publish, track, untrack, presence. Server
// ops: message, presence.
type frame struct {
	Op      string            `json:"op"`
	Topic   string            `json:"topic,omitempty"`
	Key     string            `json:"key,omitempty"`
	Payload string            `json:"payload,omitempty"`
	Roster  map[string]string `json:"roster,omitempty"`
}

// conn is one connected client. Writes go through send so a slow
// consumer never blocks the hub.
type conn struct {
	hub    *Hub
	ws     *websocket.Conn
	send   chan []byte
	userID string

	mu      sync.Mutex
	closed  bool
	topics  map[string]bool
	tracked map[string]string // topic -> presence key
}

// Hub is the realtime fan-out point: string-payload pub/sub over
// topics plus a per-topic presence registry. It carries no frame
// semantics beyond routing; clients interpret payloads.
type Hub struct {
	sec      config.SecurityConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.Mutex
	subs     map[string]map[*conn]bool
	presence map[string]map[string]string
}

// NewHub creates a Hub. Allowed WS origins come from the security
// config; an empty list admits any origin (local development).
func NewHub(sec config.SecurityConfig, logger *zap.Logger) *Hub {
	h := &Hub{
		sec:      sec,
		logger:   logger,
		subs:     make(map[string]map[*conn]bool),
		presence: make(map[string]map[string]string),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(sec.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range sec.AllowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Handle upgrades GET /rt. The access token rides the query string
// because browser WebSocket clients cannot set headers.
func (h *Hub) Handle(c *gin.Context) {
	token := c.Query("token")
	claims, err := auth.ParseToken(token, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	cn := &conn{
		hub:     h,
		ws:      ws,
		send:    make(chan []byte, 256),
		userID:  claims.UserID,
		topics:  make(map[string]bool),
		tracked: make(map[string]string),
	}
	h.logger.Info("realtime client connected", zap.String("user_id", cn.userID))
	go cn.writePump()
	cn.readPump()
}

// Broadcast delivers a payload to every subscriber of the topic. Used
// by the REST layer to push row deltas after a write.
func (h *Hub) Broadcast(topic, payload string) {
	raw, err := json.Marshal(&frame{Op: "message", Topic: topic, Payload: payload})
	if err != nil {
		return
	}
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.subs[topic]))
	for cn := range h.subs[topic] {
		conns = append(conns, cn)
	}
	h.mu.Unlock()
	for _, cn := range conns {
		cn.enqueue(raw)
	}
}

// Stats reports subscriber and presence counts per topic.
func (h *Hub) Stats() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics := make(map[string]int, len(h.subs))
	for topic, conns := range h.subs {
		topics[topic] = len(conns)
	}
	tracked := 0
	for _, reg := range h.presence {
		tracked += len(reg)
	}
	return map[string]any{"topics": topics, "tracked": tracked}
}

func (h *Hub) subscribe(cn *conn, topic string) {
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*conn]bool)
	}
	h.subs[topic][cn] = true
	h.mu.Unlock()

	cn.mu.Lock()
	cn.topics[topic] = true
	cn.mu.Unlock()
}

func (h *Hub) unsubscribe(cn *conn, topic string) {
	h.mu.Lock()
	if conns := h.subs[topic]; conns != nil {
		delete(conns, cn)
		if len(conns) == 0 {
			delete(h.subs, topic)
		}
	}
	h.mu.Unlock()

	cn.mu.Lock()
	delete(cn.topics, topic)
	cn.mu.Unlock()
}

func (h *Hub) track(cn *conn, topic, key, payload string) {
	h.mu.Lock()
	if h.presence[topic] == nil {
		h.presence[topic] = make(map[string]string)
	}
	h.presence[topic][key] = payload
	h.mu.Unlock()

	cn.mu.Lock()
	cn.tracked[topic] = key
	cn.mu.Unlock()
}

func (h *Hub) untrack(cn *conn, topic, key string) {
	h.mu.Lock()
	if reg := h.presence[topic]; reg != nil {
		delete(reg, key)
		if len(reg) == 0 {
			delete(h.presence, topic)
		}
	}
	h.mu.Unlock()

	cn.mu.Lock()
	delete(cn.tracked, topic)
	cn.mu.Unlock()
}

func (h *Hub) roster(topic string) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.presence[topic]))
	for k, v := range h.presence[topic] {
		out[k] = v
	}
	return out
}

// drop removes a disconnected client from every topic and clears its
// presence entries. Peers age the vanished participant out via
// staleness; the next roster sync no longer lists it.
func (h *Hub) drop(cn *conn) {
	cn.mu.Lock()
	topics := make([]string, 0, len(cn.topics))
	for t := range cn.topics {
		topics = append(topics, t)
	}
	tracked := make(map[string]string, len(cn.tracked))
	for t, k := range cn.tracked {
		tracked[t] = k
	}
	cn.mu.Unlock()

	for _, t := range topics {
		h.unsubscribe(cn, t)
	}
	for t, k := range tracked {
		h.untrack(cn, t, k)
	}
	h.logger.Info("realtime client disconnected", zap.String("user_id", cn.userID))
}

func (cn *conn) enqueue(raw []byte) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	select {
	case cn.send <- raw:
	default:
		// Drop when the buffer is full; durable state travels via sync.
	}
}

func (cn *conn) sendFrame(f *frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	cn.enqueue(raw)
}

func (cn *conn) writePump() {
	for raw := range cn.send {
		if err := cn.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

func (cn *conn) readPump() {
	defer func() {
		cn.hub.drop(cn)
		cn.mu.Lock()
		cn.closed = true
		cn.mu.Unlock()
		close(cn.send)
		cn.ws.Close()
	}()

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			cn.hub.logger.Warn("malformed client frame dropped",
				zap.String("user_id", cn.userID), zap.Error(err))
			continue
		}
		switch f.Op {
		case "subscribe":
			cn.hub.subscribe(cn, f.Topic)
		case "unsubscribe":
			cn.hub.unsubscribe(cn, f.Topic)
		case "publish":
			cn.hub.Broadcast(f.Topic, f.Payload)
		case "track":
			cn.hub.track(cn, f.Topic, f.Key, f.Payload)
		case "untrack":
			cn.hub.untrack(cn, f.Topic, f.Key)
		case "presence":
			cn.sendFrame(&frame{Op: "presence", Topic: f.Topic, Roster: cn.hub.roster(f.Topic)})
		default:
			cn.hub.logger.Warn("unknown client op dropped",
				zap.String("op", f.Op), zap.String("user_id", cn.userID))
		}
	}
}
