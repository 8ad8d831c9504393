// Package account ties the per-user session together: it starts sync after
// login or on daemon start, serves chat commands for the logged-in user and
// tears everything down on logout.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/chatd/internal/active"
	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/projector"
	"github.com/matheus3301/chatd/internal/store"
	intsync "github.com/matheus3301/chatd/internal/sync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidPeer rejects non-positive peer ids.
	ErrInvalidPeer = errors.New("invalid peer id")
	// ErrInvalidProfile rejects blank signup or username fields.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Authenticator manages credentials.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Identity, error)
	Logout() error
	Identity() (auth.Identity, error)
	SetUsername(name string) error
}

// Registrar creates accounts on the backend.
type Registrar interface {
	Signup(ctx context.Context, req backend.SignupRequest) error
}

// ProfileEditor changes the logged-in user's profile.
type ProfileEditor interface {
	UpdateUsername(ctx context.Context, username string) error
}

// CatchUpRunner fetches messages missed while offline.
type CatchUpRunner interface {
	Run(ctx context.Context, userID int64) (intsync.CatchUpResult, error)
}

// LiveChannel is the push channel.
type LiveChannel interface {
	Start(ctx context.Context, userID int64)
	Stop()
}

// Directory holds friends and friend requests.
type Directory interface {
	RefreshFriendRequests(ctx context.Context) error
	RefreshContacts(ctx context.Context) error
	FriendRequests() []backend.FriendRequest
	Respond(ctx context.Context, requestID int64, accept bool) error
	AddByEmail(ctx context.Context, email string) (*backend.Contact, error)
	Reset()
}

// MessageSender sends one message.
type MessageSender interface {
	Send(ctx context.Context, userID, peerID int64, content string) (*store.Message, error)
}

// Deps groups the coordinator's collaborators.
type Deps struct {
	Auth      Authenticator
	DB        *store.DB
	Tracker   *active.Tracker
	Projector *projector.Projector
	CatchUp   CatchUpRunner
	Live      LiveChannel
	Directory Directory
	Sender    MessageSender
	Registrar Registrar
	Profile   ProfileEditor
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Coordinator owns the lifetime of a logged-in session.
type Coordinator struct {
	auth      Authenticator
	db        *store.DB
	tracker   *active.Tracker
	projector *projector.Projector
	catchUp   CatchUpRunner
	live      LiveChannel
	dir       Directory
	sender    MessageSender
	registrar Registrar
	profile   ProfileEditor
	bus       *bus.Bus
	logger    *zap.Logger

	mu     sync.Mutex
	userID int64
	cancel context.CancelFunc

	unsub func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// New creates a coordinator.
func New(d Deps) *Coordinator {
	return &Coordinator{
		auth:      d.Auth,
		db:        d.DB,
		tracker:   d.Tracker,
		projector: d.Projector,
		catchUp:   d.CatchUp,
		live:      d.Live,
		dir:       d.Directory,
		sender:    d.Sender,
		registrar: d.Registrar,
		profile:   d.Profile,
		bus:       d.Bus,
		logger:    logging.OrNop(d.Logger),
	}
}

// Start watches for forced logouts and resumes a persisted session.
func (c *Coordinator) Start(ctx context.Context) error {
	events, unsub := c.bus.Subscribe(bus.KindLoggedOut, 8)
	c.unsub = unsub
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.watchLogouts(events, c.done)

	return c.Resume(ctx)
}

// Stop ends the session tasks without touching credentials.
func (c *Coordinator) Stop() {
	c.teardown()
	if c.done != nil {
		close(c.done)
		c.unsub()
		c.wg.Wait()
		c.done = nil
	}
}

// watchLogouts tears the session down when the credentials are dropped
// because a token refresh failed.
func (c *Coordinator) watchLogouts(events <-chan bus.Event, done <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case evt := <-events:
			if evt.Payload == auth.ReasonRefreshFailed {
				c.logger.Warn("session expired, stopping sync")
				c.teardown()
			}
		}
	}
}

// Login authenticates and starts the session. An existing session is
// replaced.
func (c *Coordinator) Login(ctx context.Context, email, password string) (auth.Identity, error) {
	c.teardown()
	id, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return auth.Identity{}, err
	}
	c.begin(ctx, id.UserID)
	return id, nil
}

// Resume starts the session for persisted credentials. It does nothing when
// logged out.
func (c *Coordinator) Resume(ctx context.Context) error {
	id, err := c.auth.Identity()
	if errors.Is(err, auth.ErrNotLoggedIn) {
		c.logger.Info("no stored credentials, waiting for login")
		return nil
	}
	if err != nil {
		return err
	}
	c.begin(ctx, id.UserID)
	return nil
}

// begin runs catch-up to completion, projects the conversation list, loads
// friends and finally opens the push channel. Only the push channel outlives
// ctx.
func (c *Coordinator) begin(ctx context.Context, userID int64) {
	if _, err := c.catchUp.Run(ctx, userID); err != nil {
		c.logger.Warn("catch-up failed, continuing with cached data", zap.Error(err))
	}
	if _, err := c.projector.Refresh(ctx, userID); err != nil {
		c.logger.Warn("initial conversation projection failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.dir.RefreshFriendRequests(gctx) })
	g.Go(func() error { return c.dir.RefreshContacts(gctx) })
	if err := g.Wait(); err != nil {
		c.logger.Warn("directory refresh failed", zap.Error(err))
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.userID = userID
	c.cancel = cancel
	c.mu.Unlock()

	c.live.Start(sessionCtx, userID)
	c.logger.Info("session started", zap.Int64("user_id", userID))
}

// Logout stops sync, closes the open chat and forgets the credentials. It is
// safe to call when already logged out.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.teardown()
	if err := c.auth.Logout(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.userID = 0
	c.mu.Unlock()

	c.live.Stop()
	c.tracker.Close()
	c.projector.Reset()
	c.dir.Reset()
	if cancel != nil {
		cancel()
	}
}

// UserID returns the logged-in user.
func (c *Coordinator) UserID() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == 0 {
		return 0, auth.ErrNotLoggedIn
	}
	return c.userID, nil
}

func (c *Coordinator) session(peerID int64) (int64, error) {
	if peerID <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeer, peerID)
	}
	return c.UserID()
}

// OpenChat makes peerID the foreground chat and returns its history, newest
// first. The conversation row is created if missing.
func (c *Coordinator) OpenChat(ctx context.Context, peerID int64) ([]store.Message, error) {
	userID, err := c.session(peerID)
	if err != nil {
		return nil, err
	}
	created, err := c.db.InsertConversationIfAbsent(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("open chat: %w", err)
	}
	if created {
		if _, err := c.projector.Refresh(ctx, userID); err != nil {
			c.logger.Warn("projection after new conversation failed", zap.Error(err))
		}
	}
	history, err := c.db.GetChatHistory(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	c.tracker.Open(peerID, history)
	return history, nil
}

// CloseChat clears the foreground chat.
func (c *Coordinator) CloseChat() {
	c.tracker.Close()
}

// ActiveChat returns the open peer id, or active.None.
func (c *Coordinator) ActiveChat() int64 {
	return c.tracker.Current()
}

// MarkRead marks every message from peerID as read and refreshes the
// conversation list.
func (c *Coordinator) MarkRead(ctx context.Context, peerID int64) (int64, error) {
	userID, err := c.session(peerID)
	if err != nil {
		return 0, err
	}
	n, err := c.db.MarkRead(ctx, userID, peerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if _, err := c.projector.Refresh(ctx, userID); err != nil {
		c.logger.Warn("projection after mark read failed", zap.Error(err))
	}
	c.bus.Emit(bus.KindMessagesRead, peerID)
	return n, nil
}

// Send sends content to peerID as the logged-in user.
func (c *Coordinator) Send(ctx context.Context, peerID int64, content string) (*store.Message, error) {
	userID, err := c.session(peerID)
	if err != nil {
		return nil, err
	}
	return c.sender.Send(ctx, userID, peerID, content)
}

// History returns the stored messages with peerID, newest first.
func (c *Coordinator) History(ctx context.Context, peerID int64) ([]store.Message, error) {
	userID, err := c.session(peerID)
	if err != nil {
		return nil, err
	}
	return c.db.GetChatHistory(ctx, userID, peerID)
}

// Conversations returns the current conversation list.
func (c *Coordinator) Conversations(ctx context.Context) ([]store.ConversationSummary, error) {
	userID, err := c.UserID()
	if err != nil {
		return nil, err
	}
	if summaries, ok := c.projector.Snapshot(userID); ok {
		return summaries, nil
	}
	return c.projector.Refresh(ctx, userID)
}

// FriendRequests returns the pending friend requests.
func (c *Coordinator) FriendRequests() ([]backend.FriendRequest, error) {
	if _, err := c.UserID(); err != nil {
		return nil, err
	}
	return c.dir.FriendRequests(), nil
}

// RespondFriendRequest accepts or rejects a pending request.
func (c *Coordinator) RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error {
	if _, err := c.UserID(); err != nil {
		return err
	}
	return c.dir.Respond(ctx, requestID, accept)
}

// AddFriend sends a friend request to the user registered with email.
func (c *Coordinator) AddFriend(ctx context.Context, email string) (*backend.Contact, error) {
	if _, err := c.UserID(); err != nil {
		return nil, err
	}
	return c.dir.AddByEmail(ctx, email)
}

// Signup registers a new account. It does not log in.
func (c *Coordinator) Signup(ctx context.Context, email, password, username string) error {
	username = strings.TrimSpace(username)
	if email == "" || password == "" || username == "" {
		return fmt.Errorf("%w: email, password and username are required", ErrInvalidProfile)
	}
	if err := c.registrar.Signup(ctx, backend.SignupRequest{Email: email, Password: password, Username: username}); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	c.logger.Info("account registered", zap.String("username", username))
	return nil
}

// SetUsername renames the logged-in user on the backend, then locally.
func (c *Coordinator) SetUsername(ctx context.Context, username string) (auth.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return auth.Identity{}, fmt.Errorf("%w: username is required", ErrInvalidProfile)
	}
	if _, err := c.UserID(); err != nil {
		return auth.Identity{}, err
	}
	if err := c.profile.UpdateUsername(ctx, username); err != nil {
		return auth.Identity{}, fmt.Errorf("update username: %w", err)
	}
	if err := c.auth.SetUsername(username); err != nil {
		return auth.Identity{}, err
	}
	return c.auth.Identity()
}
