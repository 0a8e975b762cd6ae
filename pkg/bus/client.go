// Package bus keeps a display connected to the relay and turns its frames
// into reconcile messages.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/wishboard/pkg/reconcile"
	"github.com/astromechza/wishboard/pkg/wish"
	"github.com/astromechza/wishboard/pkg/wsconn"
)

const (
	DefaultRetryDelay = time.Second
	sendQueue         = 16
)

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retry = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// Client keeps a display connected to the relay and turns its frames into
// reconcile messages. Connection changes are reported in-band as connected
// and disconnected messages so the machine sees them in order with the data.
type Client struct {
	baseURL *url.URL
	out     chan<- reconcile.Message
	retry   time.Duration
	dialer  *websocket.Dialer
	http    *http.Client

	mu   sync.Mutex
	send chan []byte
}

func NewClient(baseURL string, out chan<- reconcile.Message, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url must be http or https, got %q", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		out:     out,
		retry:   DefaultRetryDelay,
		dialer:  websocket.DefaultDialer,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) wsURL() string {
	u := c.baseURL.JoinPath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// Run connects, consumes and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) {
	if err := c.connectAndSync(ctx); err != nil {
		slog.Warn("relay connection lost", "err", err)
	}
	t := time.NewTicker(c.retry)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.connectAndSync(ctx); err != nil {
				slog.Warn("relay connection lost", "err", err)
			}
		case <-ctx.Done():
			slog.Info("stopping relay connection")
			return
		}
	}
}

func (c *Client) connectAndSync(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	slog.Info("connected to relay", "url", c.wsURL())

	send := make(chan []byte, sendQueue)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
	}()

	if !c.emit(ctx, reconcile.Connected()) {
		_ = conn.Close()
		return nil
	}
	err = wsconn.Pump(ctx, conn, send, func(raw []byte) error {
		env, err := wish.Decode(raw)
		if err != nil {
			return err
		}
		msg, err := reconcile.FromEnvelope(env)
		if err != nil {
			return err
		}
		c.emit(ctx, msg)
		return nil
	})
	// the machine drops its early buffer on this, so it must follow every
	// frame already emitted
	c.emit(ctx, reconcile.Disconnected())
	return err
}

func (c *Client) emit(ctx context.Context, msg reconcile.Message) bool {
	select {
	case c.out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// RequestSnapshot asks the relay for a fresh all-wishes frame. It is dropped
// when there is no live connection.
func (c *Client) RequestSnapshot() {
	frame, err := wish.Encode(wish.ChannelRequestSnapshot, nil)
	if err != nil {
		slog.Error("failed to encode snapshot request", "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		slog.Debug("no relay connection for snapshot request")
		return
	}
	select {
	case c.send <- frame:
	default:
		slog.Warn("send queue full, snapshot request dropped")
	}
}

// FetchTheme reads the board theme once over plain HTTP.
func (c *Client) FetchTheme(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("api", "theme").String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get theme: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var th wish.Theme
	if err := json.NewDecoder(resp.Body).Decode(&th); err != nil {
		return "", fmt.Errorf("failed to decode theme: %w", err)
	}
	return th.Theme, nil
}
