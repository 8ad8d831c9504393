// Package outbox sends direct messages through the backend and mirrors
// accepted ones into the local cache.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatd/internal/active"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrEmptyContent rejects blank messages before any network call.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrSendFailed wraps backend failures. Nothing is stored.
	ErrSendFailed = errors.New("send failed")
)

// Send statuses recorded in metrics.
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// MessageAPI delivers a message to the backend.
type MessageAPI interface {
	SendMessage(ctx context.Context, recipientID int64, content string) error
}

// Refresher recomputes the conversation list.
type Refresher interface {
	Refresh(ctx context.Context, userID int64) ([]store.ConversationSummary, error)
}

// SendFailure is the payload of message.send_failed events.
type SendFailure struct {
	PeerID int64
	Err    error
}

// Sender performs one send per call. There is no queue and no retry: the
// caller decides what to do with a failure.
type Sender struct {
	db        *store.DB
	api       MessageAPI
	tracker   *active.Tracker
	projector Refresher
	bus       *bus.Bus
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewSender creates a new sender.
func NewSender(db *store.DB, api MessageAPI, tracker *active.Tracker, projector Refresher, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Sender {
	return &Sender{
		db:        db,
		api:       api,
		tracker:   tracker,
		projector: projector,
		bus:       b,
		metrics:   m,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// Send delivers content to peerID. The local copy is written only after the
// backend accepted it, stored read and stamped with the local clock.
func (s *Sender) Send(ctx context.Context, userID, peerID int64, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		s.metrics.Send(StatusRejected)
		return nil, ErrEmptyContent
	}

	if err := s.api.SendMessage(ctx, peerID, content); err != nil {
		s.metrics.Send(StatusFailed)
		s.logger.Warn("send failed", zap.Error(err), zap.Int64("peer_id", peerID))
		s.bus.Emit(bus.KindMessageSendFailed, SendFailure{PeerID: peerID, Err: err})
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	s.metrics.Send(StatusSent)

	msg := &store.Message{
		SenderID:    userID,
		RecipientID: peerID,
		Content:     content,
		Timestamp:   store.FormatTimestamp(s.now()),
		Read:        true,
	}
	id, err := s.db.InsertMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("mirror sent message: %w", err)
	}
	s.metrics.Stored(metrics.SourceSent, 1)

	if _, err := s.db.InsertConversationIfAbsent(ctx, userID, peerID); err != nil {
		s.logger.Warn("ensure conversation after send failed", zap.Error(err), zap.Int64("peer_id", peerID))
	}
	if s.projector != nil {
		if _, err := s.projector.Refresh(ctx, userID); err != nil {
			s.logger.Warn("projector refresh after send failed", zap.Error(err))
		}
	}

	s.tracker.View().Prepend(userID, *msg)
	s.logger.Debug("message sent", zap.Int64("peer_id", peerID), zap.Int64("id", id))
	s.bus.Emit(bus.KindMessageSent, *msg)
	return msg, nil
}
