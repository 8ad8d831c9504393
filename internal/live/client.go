// Package live owns the push channel: a WebSocket to the chat server that
// delivers new direct messages and friend-request notifications.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
	intsync "github.com/matheus3301/chatd/internal/sync"
	"go.uber.org/zap"
)

const (
	// inboundChanSize buffers frames between the reader goroutine and the
	// event loop.
	inboundChanSize = 64

	readLimit   = 1 << 20
	dialTimeout = 15 * time.Second
	closeReason = "logout"
)

// Frame types sent by the server.
const (
	FrameDM            = "dm"
	FrameFriendRequest = "friend_request"
)

// Ingestor stores a pushed direct message.
type Ingestor interface {
	IngestLive(ctx context.Context, userID int64, dm backend.Message) (*store.Message, error)
}

// FriendRequestRefresher reloads pending friend requests.
type FriendRequestRefresher interface {
	RefreshFriendRequests(ctx context.Context) error
}

// Config holds connection parameters.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
}

// Disconnect is the payload of sync.disconnected events.
type Disconnect struct {
	Err       error
	NextRetry time.Duration
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Client keeps one push channel open for a logged-in user.
//
// A reader goroutine feeds raw frames to the event loop, which handles
// frames and heartbeat ticks in order. On a drop the loop waits out the
// backoff and dials again. Stop cancels the loop, the heartbeat and any
// pending reconnect timer and waits for every goroutine to exit.
type Client struct {
	cfg     Config
	tokens  backend.TokenSource
	ingest  Ingestor
	friends FriendRequestRefresher
	machine *status.Machine
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	dial    Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. friends may be nil.
func New(cfg Config, tokens backend.TokenSource, ingest Ingestor, friends FriendRequestRefresher, machine *status.Machine, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		tokens:  tokens,
		ingest:  ingest,
		friends: friends,
		machine: machine,
		bus:     b,
		metrics: m,
		logger:  logging.OrNop(logger),
		dial:    dialWebSocket,
	}
}

// Start begins the connection loop for userID. It is a no-op if the loop is
// already running.
func (c *Client) Start(ctx context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx, userID)
}

// Stop closes the connection and cancels the heartbeat and any pending
// reconnect. No client goroutine is running when it returns.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.metrics.SetConnected(false)
	c.machine.LogOut()
	if cancel != nil {
		c.bus.Emit(bus.KindSyncLoggedOut, nil)
	}
}

func (c *Client) run(ctx context.Context, userID int64) {
	defer c.wg.Done()
	bo := newBackOff(c.cfg.ReconnectMin, c.cfg.ReconnectMax)

	for {
		token, err := c.tokens.AccessToken(ctx)
		if ctx.Err() != nil {
			c.exit()
			return
		}
		if errors.Is(err, auth.ErrNotLoggedIn) {
			c.logger.Warn("no valid access token, push channel stays down", zap.Error(err))
			c.exit()
			return
		}

		c.transition(status.Connecting)
		c.bus.Emit(bus.KindSyncConnecting, nil)

		if err != nil {
			err = fmt.Errorf("access token: %w", err)
		} else if conn, cerr := c.connect(ctx, token); cerr != nil {
			err = cerr
		} else {
			bo.Reset()
			c.transition(status.Connected)
			c.metrics.SetConnected(true)
			c.bus.Emit(bus.KindSyncConnected, nil)
			c.logger.Info("push channel connected")

			err = c.serve(ctx, conn, userID)
			c.metrics.SetConnected(false)
		}
		if ctx.Err() != nil {
			c.exit()
			return
		}
		if errors.Is(err, errUnauthorized) {
			_, rerr := c.tokens.Refresh(ctx)
			switch {
			case ctx.Err() != nil:
				c.exit()
				return
			case errors.Is(rerr, auth.ErrNotLoggedIn):
				c.logger.Warn("push channel rejected token and refresh failed", zap.Error(rerr))
				c.exit()
				return
			case rerr != nil:
				err = fmt.Errorf("%w; refresh: %w", err, rerr)
			}
		}

		delay := bo.NextBackOff()
		c.transition(status.Disconnected)
		c.metrics.Reconnect()
		c.bus.Emit(bus.KindSyncDisconnected, Disconnect{Err: err, NextRetry: delay})
		c.logger.Warn("push channel down, reconnecting", zap.Error(err), zap.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.exit()
			return
		case <-timer.C:
		}
	}
}

// exit leaves the loop in LoggedOut.
func (c *Client) exit() {
	c.machine.LogOut()
}

func (c *Client) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("state transition skipped", zap.Error(err))
	}
}

var errUnauthorized = errors.New("push channel rejected token")

func (c *Client) connect(ctx context.Context, token string) (wsConn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := c.dial(dialCtx, u.String())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// serve runs the event loop for one connection. It returns when the
// connection drops, the heartbeat fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn wsConn, userID int64) error {
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()
	inbound := c.startReader(connCtx, conn)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, closeReason)
			return ctx.Err()

		case msg := <-inbound:
			if msg.err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "read failed")
				return fmt.Errorf("read: %w", msg.err)
			}
			c.handleFrame(ctx, userID, msg.data)

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.HeartbeatInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					_ = conn.Close(websocket.StatusNormalClosure, closeReason)
					return ctx.Err()
				}
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

func (c *Client) startReader(connCtx context.Context, conn wsConn) <-chan inboundMsg {
	ch := make(chan inboundMsg, inboundChanSize)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			typ, data, err := conn.Read(connCtx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (c *Client) handleFrame(ctx context.Context, userID int64, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.metrics.Dropped("malformed")
		c.logger.Warn("discarding malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch env.Type {
	case FrameDM:
		var dm backend.Message
		if err := json.Unmarshal(env.Payload, &dm); err != nil {
			c.metrics.Dropped("malformed")
			c.logger.Warn("discarding malformed dm payload", zap.Error(err))
			return
		}
		if _, err := c.ingest.IngestLive(ctx, userID, dm); err != nil {
			if errors.Is(err, intsync.ErrInvalidMessage) {
				c.metrics.Dropped("invalid")
				c.logger.Warn("discarding invalid dm", zap.Error(err))
				return
			}
			c.logger.Error("failed to store dm", zap.Error(err), zap.Int64("sender_id", dm.SenderID))
		}

	case FrameFriendRequest:
		if c.friends == nil {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.friends.RefreshFriendRequests(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("friend request refresh failed", zap.Error(err))
			}
		}()

	default:
		c.metrics.Dropped("unknown_type")
		c.logger.Info("discarding frame of unknown type", zap.String("type", env.Type))
	}
}
