// Package projector maintains the conversation list read model.
package projector

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"github.com/matheus3301/chatd/internal/store"
	"go.uber.org/zap"
)

// Source computes summaries from persisted rows.
type Source interface {
	GetConversationSummaries(ctx context.Context, userID int64) ([]store.ConversationSummary, error)
}

// Update is the payload of conversations.updated events.
type Update struct {
	UserID    int64
	Summaries []store.ConversationSummary
}

// Projector recomputes summaries when a mutation path asks it to: after
// catch-up, after mark-read and after a conversation row is created.
type Projector struct {
	src     Source
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.RWMutex
	userID   int64
	snapshot []store.ConversationSummary
}

// New creates a projector.
func New(src Source, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Projector {
	return &Projector{src: src, bus: b, metrics: m, logger: logging.OrNop(logger)}
}

// Refresh recomputes the summaries for userID, stores them as the current
// snapshot and publishes conversations.updated.
func (p *Projector) Refresh(ctx context.Context, userID int64) ([]store.ConversationSummary, error) {
	summaries, err := p.src.GetConversationSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("project conversations: %w", err)
	}

	p.mu.Lock()
	p.userID = userID
	p.snapshot = summaries
	p.mu.Unlock()

	p.metrics.ProjectorRefresh()
	p.logger.Debug("conversations projected", zap.Int64("user_id", userID), zap.Int("count", len(summaries)))
	p.bus.Emit(bus.KindConversationsUpdated, Update{UserID: userID, Summaries: summaries})
	return summaries, nil
}

// Snapshot returns a copy of the last computed summaries for userID. ok is
// false when nothing has been computed for that user yet.
func (p *Projector) Snapshot(userID int64) (summaries []store.ConversationSummary, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil || p.userID != userID {
		return nil, false
	}
	return append([]store.ConversationSummary(nil), p.snapshot...), true
}

// Reset drops the snapshot, e.g. on logout.
func (p *Projector) Reset() {
	p.mu.Lock()
	p.userID = 0
	p.snapshot = nil
	p.mu.Unlock()
}
