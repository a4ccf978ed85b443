package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yieldex/onchain/pkg/types"
)

const (
	heartbeatInterval        = 30 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultMaxReconnects     = 10
)

// Message types on the feed socket.
const (
	msgAuthChallenge  = "auth_challenge"
	msgAuth           = "auth"
	msgAuthOK         = "auth_ok"
	msgRecommendation = "recommendation"
	msgResult         = "execution_result"
	msgHeartbeat      = "heartbeat"
)

type envelope struct {
	Type           string                 `json:"type"`
	Challenge      string                 `json:"challenge,omitempty"`
	Wallet         string                 `json:"wallet,omitempty"`
	Signature      string                 `json:"signature,omitempty"`
	Token          string                 `json:"token,omitempty"`
	Recommendation *types.Recommendation  `json:"recommendation,omitempty"`
	Result         *types.ExecutionResult `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// Config holds feed client settings.
type Config struct {
	URL                  string
	Auth                 *Authenticator
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnError              func(error)
}

// Client maintains an authenticated websocket to the analytics feed.
// Incoming recommendations are delivered on Recommendations(); execution
// results go back with PublishResult.
type Client struct {
	config Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	claims    *SessionClaims

	recommendations chan types.Recommendation
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewClient builds a feed client; Connect starts it.
func NewClient(config Config) *Client {
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = defaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = defaultMaxReconnects
	}
	return &Client{
		config:          config,
		recommendations: make(chan types.Recommendation, 16),
	}
}

// Connect dials the feed, completes the challenge-sign handshake, and
// starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.connected = true
	log.Printf("📡 Feed connected as %s", c.config.Auth.Address())

	go c.readLoop(conn)
	go c.heartbeatLoop()
	return nil
}

// handshake runs challenge -> signature -> session token.
func (c *Client) handshake(conn *websocket.Conn) error {
	var challenge envelope
	if err := conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("failed to read auth challenge: %w", err)
	}
	if challenge.Type != msgAuthChallenge {
		return fmt.Errorf("unexpected handshake message %q", challenge.Type)
	}

	signature, err := c.config.Auth.SignChallenge(challenge.Challenge)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(envelope{
		Type:      msgAuth,
		Wallet:    c.config.Auth.Address(),
		Signature: signature,
	}); err != nil {
		return fmt.Errorf("failed to send auth response: %w", err)
	}

	var ok envelope
	if err := conn.ReadJSON(&ok); err != nil {
		return fmt.Errorf("failed to read auth result: %w", err)
	}
	if ok.Type != msgAuthOK {
		return fmt.Errorf("feed rejected authentication: %s", ok.Error)
	}
	if ok.Token != "" {
		claims, err := ParseSessionToken(ok.Token)
		if err != nil {
			return err
		}
		c.claims = claims
	}
	return nil
}

// Recommendations delivers the incoming recommendation stream. The channel
// stays open across reconnects and closes only on Close.
func (c *Client) Recommendations() <-chan types.Recommendation {
	return c.recommendations
}

// Session returns the current session claims, or nil before the first
// successful handshake.
func (c *Client) Session() *SessionClaims {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claims
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// PublishResult reports a finished execution back to the feed.
func (c *Client) PublishResult(result *types.ExecutionResult) error {
	return c.send(envelope{Type: msgResult, Result: result})
}

func (c *Client) send(msg envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			c.reportError(fmt.Errorf("feed read error: %w", err))
			c.handleDisconnect()
			return
		}

		switch msg.Type {
		case msgRecommendation:
			if msg.Recommendation == nil {
				c.reportError(fmt.Errorf("recommendation message without payload"))
				continue
			}
			select {
			case c.recommendations <- *msg.Recommendation:
			case <-c.ctx.Done():
				return
			}
		case msgHeartbeat:
			// Server keepalive, nothing to do.
		default:
			log.Printf("⚠️ Unknown feed message type %q", msg.Type)
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(envelope{Type: msgHeartbeat}); err != nil {
				c.reportError(fmt.Errorf("heartbeat failed: %w", err))
			}
		}
	}
}

func (c *Client) handleDisconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	if !wasConnected {
		return
	}
	go c.attemptReconnect()
}

func (c *Client) attemptReconnect() {
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.config.ReconnectInterval):
		}
		if err := c.Connect(c.ctx); err != nil {
			c.reportError(fmt.Errorf("feed reconnect attempt %d failed: %w", attempt, err))
			continue
		}
		return
	}
	c.reportError(fmt.Errorf("feed gave up after %d reconnect attempts", c.config.MaxReconnectAttempts))
}

func (c *Client) reportError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
		return
	}
	log.Printf("⚠️ %v", err)
}

// Close tears the connection down and closes the recommendation channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.connected {
		c.connected = false
		close(c.recommendations)
	}
}
