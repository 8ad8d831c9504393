// Package friends keeps the friend list and pending friend requests in step
// with the backend.
package friends

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnknownRequest is returned when responding to a request that is not
// pending.
var ErrUnknownRequest = errors.New("unknown friend request")

const (
	refreshInterval = time.Second
	refreshBurst    = 2
)

// API is the part of the backend the directory uses.
type API interface {
	Friends(ctx context.Context) ([]backend.Contact, error)
	FriendRequests(ctx context.Context) ([]backend.FriendRequest, error)
	SendFriendRequest(ctx context.Context, friendID int64) error
	RespondFriendRequest(ctx context.Context, requestID, senderID int64, response string) error
	SearchByEmail(ctx context.Context, email string) (*backend.Contact, error)
}

// Directory caches pending friend requests in memory and contacts in the
// store. Backend refreshes share one rate limiter so a burst of push
// notifications turns into a few requests.
type Directory struct {
	api     API
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	limiter *rate.Limiter

	mu       sync.RWMutex
	requests []backend.FriendRequest
}

// NewDirectory creates a directory.
func NewDirectory(api API, db *store.DB, b *bus.Bus, logger *zap.Logger) *Directory {
	return &Directory{
		api:     api,
		db:      db,
		bus:     b,
		logger:  logging.OrNop(logger),
		limiter: rate.NewLimiter(rate.Every(refreshInterval), refreshBurst),
	}
}

// RefreshFriendRequests reloads pending requests from the backend.
func (d *Directory) RefreshFriendRequests(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	reqs, err := d.api.FriendRequests(ctx)
	if err != nil {
		return fmt.Errorf("fetch friend requests: %w", err)
	}
	d.mu.Lock()
	d.requests = reqs
	d.mu.Unlock()

	d.logger.Debug("friend requests refreshed", zap.Int("count", len(reqs)))
	d.bus.Emit(bus.KindFriendRequests, len(reqs))
	return nil
}

// RefreshContacts reloads the friend list into the store.
func (d *Directory) RefreshContacts(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	friends, err := d.api.Friends(ctx)
	if err != nil {
		return fmt.Errorf("fetch friends: %w", err)
	}
	contacts := make([]store.Contact, 0, len(friends))
	for _, f := range friends {
		contacts = append(contacts, store.Contact{ID: f.ID, Username: f.Username, Email: f.Email})
	}
	if err := d.db.UpsertContacts(ctx, contacts); err != nil {
		return fmt.Errorf("store contacts: %w", err)
	}
	d.bus.Emit(bus.KindContacts, len(contacts))
	return nil
}

// FriendRequests returns the cached pending requests.
func (d *Directory) FriendRequests() []backend.FriendRequest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.requests)
}

// Respond accepts or rejects a pending request. Accepting also reloads the
// friend list.
func (d *Directory) Respond(ctx context.Context, requestID int64, accept bool) error {
	d.mu.RLock()
	idx := slices.IndexFunc(d.requests, func(r backend.FriendRequest) bool { return r.ID == requestID })
	var req backend.FriendRequest
	if idx >= 0 {
		req = d.requests[idx]
	}
	d.mu.RUnlock()
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}

	response := backend.ResponseReject
	if accept {
		response = backend.ResponseAccept
	}
	if err := d.api.RespondFriendRequest(ctx, req.ID, req.SenderID, response); err != nil {
		return fmt.Errorf("respond to friend request: %w", err)
	}

	d.mu.Lock()
	d.requests = slices.DeleteFunc(d.requests, func(r backend.FriendRequest) bool { return r.ID == requestID })
	remaining := len(d.requests)
	d.mu.Unlock()
	d.bus.Emit(bus.KindFriendRequests, remaining)

	if accept {
		if err := d.RefreshContacts(ctx); err != nil {
			d.logger.Warn("contacts refresh after accept failed", zap.Error(err))
		}
	}
	return nil
}

// AddByEmail looks a user up by email and sends them a friend request.
func (d *Directory) AddByEmail(ctx context.Context, email string) (*backend.Contact, error) {
	c, err := d.api.SearchByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", email, err)
	}
	if err := d.api.SendFriendRequest(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("send friend request: %w", err)
	}
	return c, nil
}

// Reset drops cached requests. Used on logout.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.requests = nil
	d.mu.Unlock()
}
