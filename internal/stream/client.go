package stream

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is one WebSocket subscriber.
type Client struct {
	hub    *Hub
	conn   Conn
	userID int
	send   chan Message
	done   chan struct{}

	mu      sync.Mutex
	symbols map[string]struct{}
}

// Symbols returns the current subscriptions.
func (c *Client) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

func (c *Client) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.symbols[symbol]
	return ok
}

// ReadLoop handles subscribe and unsubscribe commands until the connection
// fails, then unregisters the client.
func (c *Client) ReadLoop() {
	defer c.hub.Unregister(c)

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			c.hub.logger.Debug("Stream read ended", zap.Error(err), zap.Int("user_id", c.userID))
			return
		}
		c.handle(cmd)
	}
}

func (c *Client) handle(cmd Command) {
	switch strings.ToLower(cmd.Action) {
	case "subscribe":
		c.mu.Lock()
		for _, s := range cmd.Symbols {
			if s = normalizeSymbol(s); s != "" {
				c.symbols[s] = struct{}{}
			}
		}
		c.mu.Unlock()
		c.reply("subscribed", c.Symbols())
	case "unsubscribe":
		c.mu.Lock()
		for _, s := range cmd.Symbols {
			delete(c.symbols, normalizeSymbol(s))
		}
		c.mu.Unlock()
		c.hub.dropUnused()
		c.reply("unsubscribed", c.Symbols())
	default:
		c.reply("error", map[string]string{"message": "unknown action " + cmd.Action})
	}
}

func (c *Client) reply(event string, data interface{}) {
	select {
	case c.send <- Message{Event: event, Data: data}:
	default:
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Warn("Stream write failed, dropping client", zap.Error(err), zap.Int("user_id", c.userID))
				c.hub.Unregister(c)
				return
			}
		}
	}
}

// normalizeSymbol upper-cases a symbol and adds the NSE exchange prefix when
// none is given.
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ":") {
		s = "NSE:" + s
	}
	return s
}
