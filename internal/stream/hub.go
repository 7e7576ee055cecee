// Package stream pushes live prices and indicator readings to WebSocket
// subscribers. Delivery is best effort: a slow subscriber misses updates and
// a failed write drops the connection.
package stream

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/indicator"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// EventMarketData is the event name of price updates.
	EventMarketData = "marketData"

	defaultWindowSize = 100
	sendBuffer        = 16
	writeTimeout      = 5 * time.Second
)

// PriceSource returns last traded prices keyed by instrument.
type PriceSource interface {
	LTP(ctx context.Context, s client.Session, instruments ...string) (map[string]decimal.Decimal, error)
}

// Conn is the part of a WebSocket connection the hub uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Update is the payload of a marketData event.
type Update struct {
	Symbol     string        `json:"symbol"`
	Price      float64       `json:"price"`
	Indicators indicator.Set `json:"indicators"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Message is the envelope of every server-to-client frame.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Command is a client request to change its subscriptions.
type Command struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Hub tracks subscribers and the rolling price window of every symbol.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	windows map[string]*Window

	source     PriceSource
	session    client.Session
	params     indicator.Params
	interval   time.Duration
	windowSize int
	now        func() time.Time
	logger     *zap.Logger
}

// NewHub creates a hub that polls source with session. Streaming uses the
// service account credentials, not those of individual subscribers.
func NewHub(source PriceSource, session client.Session, cfg config.MarketDataConfig, logger *zap.Logger) *Hub {
	size := cfg.WindowSize
	if size <= 0 {
		size = defaultWindowSize
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		windows:    make(map[string]*Window),
		source:     source,
		session:    session,
		params:     indicator.DefaultParams(),
		interval:   interval,
		windowSize: size,
		now:        time.Now,
		logger:     logger,
	}
}

// Upgrader returns the WebSocket upgrader used for /ws.
func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// Register adds a connection and starts its writer.
func (h *Hub) Register(conn Conn, userID int) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		userID:  userID,
		send:    make(chan Message, sendBuffer),
		symbols: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	h.logger.Info("Stream client connected", zap.Int("user_id", userID))
	return c
}

// Unregister removes a client and closes its connection. It is safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		close(c.done)
		c.conn.Close()
		h.logger.Info("Stream client disconnected", zap.Int("user_id", c.userID))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run polls prices every interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Poll(ctx)
		}
	}
}

// Poll fetches one round of prices for all subscribed symbols and broadcasts
// the updates. Errors are logged and the round is skipped.
func (h *Hub) Poll(ctx context.Context) {
	symbols := h.subscribedSymbols()
	if len(symbols) == 0 {
		return
	}

	prices, err := h.source.LTP(ctx, h.session, symbols...)
	if err != nil {
		h.logger.Warn("Failed to fetch live prices", zap.Error(err), zap.Int("symbols", len(symbols)))
		return
	}

	ts := h.now()
	for _, sym := range symbols {
		p, ok := prices[sym]
		if !ok {
			continue
		}
		price := p.InexactFloat64()

		h.mu.Lock()
		w, ok := h.windows[sym]
		if !ok {
			w = NewWindow(h.windowSize)
			h.windows[sym] = w
		}
		w.Push(price)
		closes := w.Values()
		h.mu.Unlock()

		set, err := indicator.Latest(closes, h.params)
		if err != nil {
			h.logger.Error("Failed to compute live indicators", zap.Error(err), zap.String("symbol", sym))
			continue
		}
		h.broadcast(sym, Message{Event: EventMarketData, Data: Update{
			Symbol:     sym,
			Price:      price,
			Indicators: set,
			Timestamp:  ts,
		}})
	}
}

func (h *Hub) subscribedSymbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for c := range h.clients {
		c.mu.Lock()
		for s := range c.symbols {
			seen[s] = struct{}{}
		}
		c.mu.Unlock()
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) broadcast(symbol string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.subscribed(symbol) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("Dropping update for slow client",
				zap.Int("user_id", c.userID),
				zap.String("symbol", symbol))
		}
	}
}

// dropUnused forgets price windows nobody subscribes to any more.
func (h *Hub) dropUnused() {
	active := make(map[string]struct{})
	for _, s := range h.subscribedSymbols() {
		active[s] = struct{}{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.windows {
		if _, ok := active[s]; !ok {
			delete(h.windows, s)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
