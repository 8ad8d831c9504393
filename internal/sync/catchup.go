package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"github.com/matheus3301/chatd/internal/metrics"
	"go.uber.org/zap"
)

// UnreadSource fetches messages missed while offline.
type UnreadSource interface {
	UnreadMessages(ctx context.Context) ([]backend.Message, error)
}

// CatchUpResult is the payload of sync.catchup_done events.
type CatchUpResult struct {
	UserID   int64
	Fetched  int
	Stored   int
	Duration time.Duration
	Err      error
}

// CatchUp runs the login-time fetch of unread messages. One attempt per
// session; a failure leaves the cache as it was.
type CatchUp struct {
	src         UnreadSource
	engine      *Engine
	checkpoints *Checkpoints
	bus         *bus.Bus
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewCatchUp creates a catch-up fetcher.
func NewCatchUp(src UnreadSource, engine *Engine, checkpoints *Checkpoints, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *CatchUp {
	return &CatchUp{
		src:         src,
		engine:      engine,
		checkpoints: checkpoints,
		bus:         b,
		metrics:     m,
		logger:      logging.OrNop(logger),
	}
}

// Run fetches and stores unread messages for userID. It returns when the
// fetch and all inserts are done.
func (c *CatchUp) Run(ctx context.Context, userID int64) (res CatchUpResult, err error) {
	start := time.Now()
	res.UserID = userID
	defer func() {
		res.Duration = time.Since(start)
		res.Err = err
		c.metrics.ObserveCatchUp(res.Duration)
		c.bus.Emit(bus.KindCatchUpDone, res)
	}()

	msgs, err := c.src.UnreadMessages(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch unread: %w", err)
	}
	res.Fetched = len(msgs)

	res.Stored, err = c.engine.IngestBacklog(ctx, userID, msgs)
	if err != nil {
		return res, err
	}

	if c.checkpoints != nil {
		if err := c.checkpoints.Record(ctx, userID, Checkpoint{At: time.Now(), Count: res.Stored}); err != nil {
			c.logger.Warn("record catch-up checkpoint", zap.Error(err))
		}
	}
	c.logger.Info("catch-up complete", zap.Int64("user_id", userID), zap.Int("fetched", res.Fetched), zap.Int("stored", res.Stored))
	return res, nil
}
