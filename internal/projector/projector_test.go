package projector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRefreshPublishesAndCaches(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := db.InsertConversationIfAbsent(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(ctx, &store.Message{SenderID: 2, RecipientID: 1, Content: "hi", Timestamp: "2024-01-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	ch, unsub := b.Subscribe("conversations.", 1)
	defer unsub()

	p := New(db, b, nil, nil)
	if _, ok := p.Snapshot(1); ok {
		t.Error("Snapshot before Refresh reported ok")
	}

	got, err := p.Refresh(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UnreadCount != 1 {
		t.Fatalf("summaries = %+v", got)
	}

	select {
	case evt := <-ch:
		upd, ok := evt.Payload.(Update)
		if !ok || upd.UserID != 1 || len(upd.Summaries) != 1 {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no conversations.updated event")
	}

	snap, ok := p.Snapshot(1)
	if !ok || len(snap) != 1 {
		t.Errorf("Snapshot(1) = %v, %v", snap, ok)
	}
	if _, ok := p.Snapshot(2); ok {
		t.Error("Snapshot for another user reported ok")
	}

	p.Reset()
	if _, ok := p.Snapshot(1); ok {
		t.Error("Snapshot after Reset reported ok")
	}
}

type failingSource struct{}

func (failingSource) GetConversationSummaries(context.Context, int64) ([]store.ConversationSummary, error) {
	return nil, store.ErrUnavailable
}

func TestRefreshErrorKeepsSnapshot(t *testing.T) {
	p := New(failingSource{}, nil, nil, nil)
	_, err := p.Refresh(context.Background(), 1)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if _, ok := p.Snapshot(1); ok {
		t.Error("failed Refresh produced a snapshot")
	}
}
