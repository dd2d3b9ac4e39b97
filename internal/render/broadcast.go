package render

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/overlay"
)

const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the JSON pushed to clients once per frame.
type Message struct {
	Transform overlay.Transform   `json:"transform"`
	Nails     []overlay.Transform `json:"nails,omitempty"`
	Facing    overlay.FacingMode  `json:"facing"`
	Viewport  overlay.Viewport    `json:"viewport"`
	Hands     int                 `json:"hands"`
	Timestamp int64               `json:"timestamp"`
}

// Broadcaster pushes each pass's transform to connected WebSocket clients,
// which render the nail graphic themselves.
type Broadcaster struct {
	logger  *zap.SugaredLogger
	clients map[*websocket.Conn]bool
	vp      overlay.Viewport
	mu      sync.RWMutex
}

// NewBroadcaster creates a Broadcaster with no clients.
func NewBroadcaster(logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Resize records the viewport sent along with each transform.
func (b *Broadcaster) Resize(vp overlay.Viewport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vp = vp
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Render sends the pass to every client. Clients that fail to receive are
// dropped; that is not an error of the pass.
func (b *Broadcaster) Render(p Pass) error {
	b.mu.RLock()
	if len(b.clients) == 0 {
		b.mu.RUnlock()
		return nil
	}
	msg, err := json.Marshal(Message{
		Transform: p.Transform,
		Nails:     p.nails(),
		Facing:    p.Facing,
		Viewport:  b.vp,
		Hands:     len(p.Result.Hands),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		b.mu.RUnlock()
		return err
	}

	var failed []*websocket.Conn
	for conn := range b.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			failed = append(failed, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range failed {
		b.logger.Debugw("dropping overlay client", "remote", conn.RemoteAddr().String())
		conn.Close()
	}
	return nil
}
