package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insert(t *testing.T, db *DB, from, to int64, content, ts string, read bool) int64 {
	t.Helper()
	id, err := db.InsertMessage(context.Background(), &Message{
		SenderID: from, RecipientID: to, Content: content, Timestamp: ts, Read: read,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestInitIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Init(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Init() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestOperationsWaitForInit(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	done := make(chan error, 1)
	go func() {
		_, err := db.InsertMessage(context.Background(), &Message{
			SenderID: 1, RecipientID: 2, Content: "early", Timestamp: "2024-01-01T00:00:00Z",
		})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("InsertMessage returned before Init: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("InsertMessage after Init: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("InsertMessage still blocked after Init")
	}

	history, err := db.GetChatHistory(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Content != "early" {
		t.Errorf("history = %+v, want the early message", history)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = db.GetConversationSummaries(ctx, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestQueryFailureIsUnavailable(t *testing.T) {
	db := testDB(t)
	_ = db.Close()

	_, err := db.GetChatHistory(context.Background(), 1, 2)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestInsertMessageDoesNotDeduplicate(t *testing.T) {
	db := testDB(t)

	first := insert(t, db, 2, 1, "hi", "2024-01-01T10:00:00Z", false)
	second := insert(t, db, 2, 1, "hi", "2024-01-01T10:00:00Z", false)
	if first == second {
		t.Fatalf("ids equal (%d); want distinct rows", first)
	}

	history, err := db.GetChatHistory(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2 duplicates", len(history))
	}
}

func TestGetChatHistoryBothDirectionsNewestFirst(t *testing.T) {
	db := testDB(t)

	insert(t, db, 1, 2, "first", "2024-01-01T10:00:00Z", true)
	insert(t, db, 2, 1, "second", "2024-01-01T10:01:00Z", false)
	insert(t, db, 1, 2, "third", "2024-01-01T10:02:00.5Z", true)
	insert(t, db, 3, 1, "other chat", "2024-01-01T10:03:00Z", false)

	history, err := db.GetChatHistory(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"third", "second", "first"}
	if len(history) != len(want) {
		t.Fatalf("got %d messages, want %d", len(history), len(want))
	}
	for i, w := range want {
		if history[i].Content != w {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, w)
		}
	}
	if history[0].Timestamp != "2024-01-01T10:02:00.500Z" {
		t.Errorf("timestamp = %q, want normalized form", history[0].Timestamp)
	}

	// Same view from the peer's side.
	peer, err := db.GetChatHistory(context.Background(), 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(peer) != 3 {
		t.Errorf("peer view has %d messages, want 3", len(peer))
	}
}

func TestInsertConversationIfAbsent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	created, err := db.InsertConversationIfAbsent(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first insert should report created")
	}
	before, err := db.GetConversation(ctx, 1, 2)
	if err != nil || before == nil {
		t.Fatalf("GetConversation = %v, %v", before, err)
	}

	created, err = db.InsertConversationIfAbsent(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second insert should be ignored")
	}
	after, _ := db.GetConversation(ctx, 1, 2)
	if after.LastUpdated != before.LastUpdated {
		t.Errorf("last_updated changed on ignored insert: %q -> %q", before.LastUpdated, after.LastUpdated)
	}

	// Directed rows: (2,1) is a different conversation.
	if c, _ := db.GetConversation(ctx, 2, 1); c != nil {
		t.Errorf("reverse row exists: %+v", c)
	}
	if n, _ := db.ConversationCount(ctx, 1); n != 1 {
		t.Errorf("ConversationCount = %d, want 1", n)
	}
}

func TestInsertMessageBumpsLastUpdated(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO conversations (user_id, chatting_user_id, last_updated) VALUES (1, 2, '2000-01-01T00:00:00.000Z')`); err != nil {
		t.Fatal(err)
	}
	insert(t, db, 2, 1, "new", "2024-05-05T00:00:00Z", false)
	c, _ := db.GetConversation(ctx, 1, 2)
	if c.LastUpdated != "2024-05-05T00:00:00.000Z" {
		t.Errorf("last_updated = %q, want bumped to message time", c.LastUpdated)
	}

	// An older message arriving late does not move it back.
	insert(t, db, 1, 2, "old", "2023-01-01T00:00:00Z", true)
	c, _ = db.GetConversation(ctx, 1, 2)
	if c.LastUpdated != "2024-05-05T00:00:00.000Z" {
		t.Errorf("last_updated = %q, moved backwards", c.LastUpdated)
	}
}

func TestConversationSummaries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, peer := range []int64{2, 3} {
		if _, err := db.InsertConversationIfAbsent(ctx, 1, peer); err != nil {
			t.Fatal(err)
		}
	}
	insert(t, db, 2, 1, "older unread", "2024-01-01T10:00:00Z", false)
	insert(t, db, 2, 1, "newest unread", "2024-01-01T10:05:00Z", false)
	insert(t, db, 2, 1, "seen", "2024-01-01T10:06:00Z", true)
	insert(t, db, 1, 2, "mine", "2024-01-01T10:07:00Z", false)
	insert(t, db, 1, 3, "to three", "2024-01-01T09:00:00Z", true)

	if err := db.UpsertContacts(ctx, []Contact{{ID: 2, Username: "bob"}}); err != nil {
		t.Fatal(err)
	}

	summaries, err := db.GetConversationSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	bob := summaries[0]
	if bob.PeerID != 2 {
		t.Fatalf("first summary peer = %d, want 2 (most recent)", bob.PeerID)
	}
	if bob.PeerName != "bob" {
		t.Errorf("peer name = %q, want bob", bob.PeerName)
	}
	if bob.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2 (own and read messages excluded)", bob.UnreadCount)
	}
	if bob.LastUnreadMessage == nil || *bob.LastUnreadMessage != "newest unread" {
		t.Errorf("last unread = %v, want newest unread", bob.LastUnreadMessage)
	}

	three := summaries[1]
	if three.UnreadCount != 0 || three.LastUnreadMessage != nil {
		t.Errorf("peer 3 summary = %+v, want no unread", three)
	}
}

func TestConversationSummariesTieBreakByInsertion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, peer := range []int64{5, 4, 6} {
		if _, err := db.Exec(`INSERT INTO conversations (user_id, chatting_user_id, last_updated) VALUES (1, ?, '2024-01-01T00:00:00.000Z')`, peer); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec(`INSERT INTO conversations (user_id, chatting_user_id, last_updated) VALUES (1, 7, '2024-02-01T00:00:00.000Z')`); err != nil {
		t.Fatal(err)
	}

	summaries, err := db.GetConversationSummaries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{7, 5, 4, 6}
	for i, w := range want {
		if summaries[i].PeerID != w {
			t.Errorf("summaries[%d].PeerID = %d, want %d", i, summaries[i].PeerID, w)
		}
	}
}

func TestConversationSummariesEmpty(t *testing.T) {
	db := testDB(t)
	summaries, err := db.GetConversationSummaries(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if summaries == nil || len(summaries) != 0 {
		t.Errorf("summaries = %v, want empty non-nil slice", summaries)
	}
}

func TestMarkReadIsBulkAndIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.InsertConversationIfAbsent(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	insert(t, db, 2, 1, "a", "2024-01-01T10:00:00Z", false)
	insert(t, db, 2, 1, "b", "2024-01-01T10:01:00Z", false)
	insert(t, db, 3, 1, "other", "2024-01-01T10:02:00Z", false)
	insert(t, db, 1, 2, "outgoing unread", "2024-01-01T10:03:00Z", false)

	n, err := db.MarkRead(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("MarkRead affected %d rows, want 2", n)
	}

	for i := 0; i < 2; i++ {
		summaries, err := db.GetConversationSummaries(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if summaries[0].UnreadCount != 0 {
			t.Errorf("pass %d: unread = %d, want 0", i, summaries[0].UnreadCount)
		}
		if n, err := db.MarkRead(ctx, 1, 2); err != nil || n != 0 {
			t.Errorf("pass %d: repeat MarkRead = %d, %v", i, n, err)
		}
	}

	// Messages from other peers and the user's own messages are untouched.
	var unread int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE read = 0`).Scan(&unread); err != nil {
		t.Fatal(err)
	}
	if unread != 2 {
		t.Errorf("remaining unread = %d, want 2", unread)
	}
}

func TestInsertBacklog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msgs := []Message{
		{SenderID: 2, RecipientID: 1, Content: "x", Timestamp: "2024-01-01T10:00:00Z", Read: true},
		{SenderID: 3, RecipientID: 1, Content: "y", Timestamp: "2024-01-01T10:01:00Z"},
	}
	if err := db.InsertBacklog(ctx, msgs, false); err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.ID == 0 || m.Read {
			t.Errorf("backlog message = %+v, want id set and read=false", m)
		}
	}
	if n, _ := db.MessageCount(ctx); n != 2 {
		t.Errorf("MessageCount = %d, want 2", n)
	}
}

func TestContactsUpsertKeepsKnownFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertContacts(ctx, []Contact{{ID: 2, Username: "bob", Email: "bob@example.com"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertContacts(ctx, []Contact{{ID: 2, Username: "robert"}}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if c.Username != "robert" || c.Email != "bob@example.com" {
		t.Errorf("contact = %+v", c)
	}
	if missing, _ := db.GetContact(ctx, 99); missing != nil {
		t.Errorf("GetContact(99) = %+v, want nil", missing)
	}
	all, _ := db.ListContacts(ctx)
	if len(all) != 1 {
		t.Errorf("ListContacts len = %d, want 1", len(all))
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetState(ctx, "k"); err != nil || ok {
		t.Fatalf("GetState(unset) = ok %v, err %v", ok, err)
	}
	if err := db.SetState(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetState(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("GetState = %q, %v, %v; want v2", v, ok, err)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-01-01T10:00:00Z", "2024-01-01T10:00:00.000Z"},
		{"2024-01-01T12:00:00.123456+02:00", "2024-01-01T10:00:00.123Z"},
		{"not a time", "not a time"},
	}
	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
