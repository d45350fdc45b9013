package seqd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"candleseq/internal/analysis"
	"candleseq/internal/pattern"
	"candleseq/internal/scheduler"
)

const (
	// PatternsChannel carries every pattern search outcome.
	PatternsChannel = "patterns"

	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	sendBuffer   = 64
)

// ReportChannel is the stream channel for one symbol's reports. Symbols are
// matched case-insensitively, like the symbols filter.
func ReportChannel(symbol string) string {
	return "report:" + normalizeSymbol(symbol)
}

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is one stream message.
type envelope struct {
	Channel string          `json:"channel"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type patternBatch struct {
	BatchID string          `json:"batch_id"`
	Outcome pattern.Outcome `json:"outcome"`
}

// Hub fans reports and pattern outcomes out to websocket clients. New
// clients first receive the latest message of every channel they follow.
type Hub struct {
	mu      sync.RWMutex
	clients map[*streamClient]bool
	latest  map[string]envelope
	seq     int64
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*streamClient]bool),
		latest:  make(map[string]envelope),
	}
}

var _ scheduler.Publisher = (*Hub)(nil)

// PublishReport broadcasts rep on its symbol's channel.
func (h *Hub) PublishReport(rep *analysis.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	h.broadcast(ReportChannel(rep.Source), data)
	return nil
}

// PublishPatterns broadcasts a pattern outcome on PatternsChannel.
func (h *Hub) PublishPatterns(batchID string, out pattern.Outcome) error {
	data, err := json.Marshal(patternBatch{BatchID: batchID, Outcome: out})
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	h.broadcast(PatternsChannel, data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.mu.Lock()
	h.seq++
	env := envelope{Channel: channel, Seq: h.seq, TS: time.Now().UTC(), Data: data}
	h.latest[channel] = env
	h.mu.Unlock()

	msg, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.follows(channel) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			log.Printf("[stream] client send buffer full, dropping seq %d", env.Seq)
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The optional
// symbols query parameter limits report channels; patterns always flow.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[stream] ws upgrade error: %v", err)
		return
	}
	c := &streamClient{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: parseSymbolFilter(r.URL.Query().Get("symbols")),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = true
	count := len(h.clients)
	for channel, env := range h.latest {
		if !c.follows(channel) {
			continue
		}
		env.Initial = true
		if msg, err := json.Marshal(env); err == nil {
			select {
			case c.send <- msg:
			default:
			}
		}
	}
	h.mu.Unlock()

	log.Printf("[stream] ws client connected (%d total)", count)
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func parseSymbolFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = normalizeSymbol(s); s != "" {
			out[s] = true
		}
	}
	return out
}

type streamClient struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	symbols map[string]bool
}

func (c *streamClient) follows(channel string) bool {
	symbol, ok := strings.CutPrefix(channel, "report:")
	if !ok || c.symbols == nil {
		return true
	}
	return c.symbols[symbol]
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; client messages are ignored.
func (c *streamClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Println("[stream] ws client disconnected")
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
