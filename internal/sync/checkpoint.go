package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/chatd/internal/store"
)

// Checkpoints records when catch-up last completed for each user.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint store over sync_state.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// Checkpoint is the outcome of the last successful catch-up.
type Checkpoint struct {
	At    time.Time
	Count int
}

func key(userID int64, field string) string {
	return fmt.Sprintf("catchup.%d.%s", userID, field)
}

// Record stores a completed catch-up.
func (c *Checkpoints) Record(ctx context.Context, userID int64, cp Checkpoint) error {
	if err := c.db.SetState(ctx, key(userID, "last_at"), cp.At.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return c.db.SetState(ctx, key(userID, "last_count"), strconv.Itoa(cp.Count))
}

// Last returns the last recorded catch-up. ok is false if none.
func (c *Checkpoints) Last(ctx context.Context, userID int64) (cp Checkpoint, ok bool, err error) {
	at, ok, err := c.db.GetState(ctx, key(userID, "last_at"))
	if err != nil || !ok {
		return Checkpoint{}, false, err
	}
	cp.At, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	count, _, err := c.db.GetState(ctx, key(userID, "last_count"))
	if err != nil {
		return Checkpoint{}, false, err
	}
	cp.Count, _ = strconv.Atoi(count)
	return cp, true, nil
}
