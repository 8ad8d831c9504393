package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatd/internal/active"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidMessage rejects payloads missing ids, content or timestamp, or
// not addressed to or from the current user.
var ErrInvalidMessage = errors.New("invalid message")

// Refresher recomputes the conversation list.
type Refresher interface {
	Refresh(ctx context.Context, userID int64) ([]store.ConversationSummary, error)
}

// Engine is the single write path for inbound messages, from the push
// channel and from catch-up. Messages are appended as received; the same
// message delivered by both sources is stored twice.
type Engine struct {
	db        *store.DB
	tracker   *active.Tracker
	projector Refresher
	bus       *bus.Bus
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, tracker *active.Tracker, projector Refresher, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		db:        db,
		tracker:   tracker,
		projector: projector,
		bus:       b,
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// IngestLive stores one pushed message. The read flag is decided from the
// active-chat pointer as it is at this moment: a message from the peer whose
// chat is open is stored read. Every stored message refreshes the projector;
// a message for the open chat is prepended to its live view.
func (e *Engine) IngestLive(ctx context.Context, userID int64, dm backend.Message) (*store.Message, error) {
	peer, err := validate(userID, dm)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		SenderID:    dm.SenderID,
		RecipientID: dm.RecipientID,
		Content:     dm.Content,
		Timestamp:   dm.CreatedAt,
		Read:        dm.SenderID == userID || e.tracker.Current() == dm.SenderID,
	}
	if _, err := e.db.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store live message: %w", err)
	}
	e.metrics.Stored(metrics.SourceLive, 1)

	if _, err := e.db.InsertConversationIfAbsent(ctx, userID, peer); err != nil {
		return msg, fmt.Errorf("ensure conversation: %w", err)
	}
	if _, err := e.projector.Refresh(ctx, userID); err != nil {
		e.logger.Warn("projector refresh after live message failed", zap.Error(err), zap.Int64("peer_id", peer))
	}

	e.tracker.View().Prepend(userID, *msg)
	e.bus.Emit(bus.KindMessageStored, *msg)
	return msg, nil
}

// IngestBacklog stores catch-up messages unread in one transaction and makes
// sure each sender has a conversation row. Invalid entries are skipped. It
// returns the number of messages stored.
func (e *Engine) IngestBacklog(ctx context.Context, userID int64, dms []backend.Message) (int, error) {
	msgs := make([]store.Message, 0, len(dms))
	peers := make([]int64, 0, len(dms))
	seen := make(map[int64]bool)
	for _, dm := range dms {
		peer, err := validate(userID, dm)
		if err != nil {
			e.logger.Warn("skipping catch-up message", zap.Error(err), zap.Int64("sender_id", dm.SenderID))
			continue
		}
		msgs = append(msgs, store.Message{
			SenderID:    dm.SenderID,
			RecipientID: dm.RecipientID,
			Content:     dm.Content,
			Timestamp:   dm.CreatedAt,
		})
		if !seen[peer] {
			seen[peer] = true
			peers = append(peers, peer)
		}
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := e.db.InsertBacklog(ctx, msgs, false); err != nil {
		return 0, fmt.Errorf("store backlog: %w", err)
	}
	e.metrics.Stored(metrics.SourceCatchUp, len(msgs))

	for _, peer := range peers {
		if _, err := e.db.InsertConversationIfAbsent(ctx, userID, peer); err != nil {
			return len(msgs), fmt.Errorf("ensure conversation: %w", err)
		}
	}
	return len(msgs), nil
}

// validate checks dm and returns the peer id from userID's point of view.
func validate(userID int64, dm backend.Message) (int64, error) {
	switch {
	case dm.SenderID <= 0 || dm.RecipientID <= 0:
		return 0, fmt.Errorf("%w: missing participant", ErrInvalidMessage)
	case strings.TrimSpace(dm.Content) == "":
		return 0, fmt.Errorf("%w: empty content", ErrInvalidMessage)
	case dm.CreatedAt == "":
		return 0, fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	}
	if _, err := time.Parse(time.RFC3339Nano, dm.CreatedAt); err != nil {
		return 0, fmt.Errorf("%w: timestamp %q is not RFC 3339", ErrInvalidMessage, dm.CreatedAt)
	}
	switch userID {
	case dm.RecipientID:
		return dm.SenderID, nil
	case dm.SenderID:
		return dm.RecipientID, nil
	default:
		return 0, fmt.Errorf("%w: not addressed to user %d", ErrInvalidMessage, userID)
	}
}
