package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
	"presale-ledger/internal/presale"
)

// HubConfig configures websocket subscriber handling.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a subscriber may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing one frame.
	WriteTimeout time.Duration
	// SendBuffer is the number of commits queued per subscriber before it
	// is dropped as too slow.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// commitMessage is one websocket frame: the entries of one ledger version.
type commitMessage struct {
	Version int64                  `json:"version"`
	Entries []journalEntryResponse `json:"entries"`
}

// Hub fans committed journal entries out to websocket subscribers.
// Subscribers may filter by investor with ?investor=<address>.
type Hub struct {
	config   HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool

	wg sync.WaitGroup
}

type subscriber struct {
	conn     *websocket.Conn
	investor domain.Address // empty = all entries
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

// Compile-time interface check.
var _ presale.Listener = (*Hub)(nil)

// NewHub creates a Hub.
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		config:  cfg,
		logger:  logger.Named("hub"),
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// OnCommit queues the entries for every matching subscriber. Subscribers
// whose queue is full are disconnected.
func (h *Hub) OnCommit(entries []*domain.JournalEntry) {
	if len(entries) == 0 {
		return
	}

	var slow []*subscriber
	cache := make(map[domain.Address][]byte)

	h.mu.Lock()
	for c := range h.clients {
		frame, ok := cache[c.investor]
		if !ok {
			frame = encodeCommit(entries, c.investor)
			cache[c.investor] = frame
		}
		if frame == nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow subscriber", zap.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

// encodeCommit renders the entries visible to investor, nil if none are.
func encodeCommit(entries []*domain.JournalEntry, investor domain.Address) []byte {
	msg := commitMessage{Version: entries[0].Version}
	for _, e := range entries {
		if investor != "" && e.Investor != investor {
			continue
		}
		msg.Entries = append(msg.Entries, newJournalEntryResponse(e))
	}
	if len(msg.Entries) == 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

// ServeHTTP upgrades the request and registers a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var investor domain.Address
	if raw := r.URL.Query().Get("investor"); raw != "" {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: domain.ReasonOf(err), Kind: string(domain.KindInput)})
			return
		}
		investor = addr
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &subscriber{
		conn:     conn,
		investor: investor,
		send:     make(chan []byte, h.config.SendBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	observability.SetWSSubscribers(count)
	h.logger.Info("subscriber connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("investor", investor.String()),
	)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*subscriber, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.once.Do(func() { close(c.done) })
	observability.SetWSSubscribers(count)
}

// writeLoop owns all writes to the connection and closes it on exit.
func (h *Hub) writeLoop(c *subscriber) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(h.config.WriteTimeout)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.remove(c)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(c *subscriber) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
