package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
	xlogger "ImpactRank/pkg/logger"
)

const maxInbound = 4 << 10

// Config configures the recommendation stream.
type Config struct {
	Path         string
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Message is what subscribers receive for every ranking run.
type Message struct {
	Type            string              `json:"type"`
	RunID           string              `json:"run_id"`
	ReferenceTime   time.Time           `json:"reference_time"`
	CreatedAt       time.Time           `json:"created_at"`
	Recommendations []RecommendationMsg `json:"recommendations"`
}

type RecommendationMsg struct {
	Ticker     string   `json:"ticker"`
	Score      float64  `json:"score"`
	References []string `json:"references"`
}

func newMessage(kind string, r *models.Ranking) Message {
	m := Message{
		Type:            kind,
		RunID:           r.RunID,
		ReferenceTime:   r.ReferenceTime,
		CreatedAt:       r.CreatedAt,
		Recommendations: make([]RecommendationMsg, 0, len(r.Recommendations)),
	}
	for _, rec := range r.Recommendations {
		m.Recommendations = append(m.Recommendations, RecommendationMsg{
			Ticker:     rec.Ticker,
			Score:      rec.Score,
			References: rec.References(),
		})
	}
	return m
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub pushes every new ranking to connected websocket clients. A client
// whose send buffer is full is dropped rather than blocking the refresh job.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	latest   domrepo.RankingCache
	l        *xlogger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub builds a hub. latest may be nil; when set, new clients first get the
// cached ranking as a "snapshot" message.
func NewHub(cfg Config, latest domrepo.RankingCache, l *xlogger.Logger) *Hub {
	if l == nil {
		l = xlogger.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws/recommendations"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		latest:  latest,
		l:       l,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET(h.cfg.Path, h.Serve)
}

// Serve upgrades the request and runs the client until it disconnects.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.l.Warn("websocket upgrade failed", xlogger.Error(err), xlogger.String("remote_ip", c.RealIP()))
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}
	h.sendSnapshot(c.Request().Context(), cl)
	if !h.register(cl) {
		_ = conn.Close()
		return nil
	}
	h.l.Debug("websocket client connected", xlogger.String("remote_ip", c.RealIP()), xlogger.Int("clients", h.Count()))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Broadcast queues r for every client.
func (h *Hub) Broadcast(r *models.Ranking) {
	if r == nil {
		return
	}
	b, err := json.Marshal(newMessage("ranking", r))
	if err != nil {
		h.l.Error("websocket encode failed", xlogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.l.Warn("websocket client too slow, dropping")
		h.unregister(cl)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for cl := range clients {
		cl.close()
	}
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	cl.close()
}

// sendSnapshot runs before register so nothing else can close cl.send yet.
func (h *Hub) sendSnapshot(ctx context.Context, cl *client) {
	if h.latest == nil {
		return
	}
	r, ok, err := h.latest.GetLatest(ctx)
	if err != nil {
		h.l.Warn("websocket snapshot read failed", xlogger.Error(err))
		return
	}
	if !ok || r == nil {
		return
	}
	b, err := json.Marshal(newMessage("snapshot", r))
	if err != nil {
		return
	}
	select {
	case cl.send <- b:
	default:
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Hub) readPump(cl *client) {
	defer h.unregister(cl)
	wait := 2 * h.cfg.PingInterval
	cl.conn.SetReadLimit(maxInbound)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.l.Debug("websocket read ended", xlogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(cl)
				return
			}
		}
	}
}
