package api

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/live"
	"github.com/matheus3301/chatd/internal/outbox"
	"github.com/matheus3301/chatd/internal/store"
	intsync "github.com/matheus3301/chatd/internal/sync"
)

// watchBufferSize is the per-stream bus buffer. Slow watchers lose events
// rather than stall publishers.
const watchBufferSize = 256

// Chats is the chat side of the account.
type Chats interface {
	Conversations(ctx context.Context) ([]store.ConversationSummary, error)
	OpenChat(ctx context.Context, peerID int64) ([]store.Message, error)
	CloseChat()
	History(ctx context.Context, peerID int64) ([]store.Message, error)
	MarkRead(ctx context.Context, peerID int64) (int64, error)
	FriendRequests() ([]backend.FriendRequest, error)
	RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error
	AddFriend(ctx context.Context, email string) (*backend.Contact, error)
}

// ChatService implements ChatServer.
type ChatService struct {
	chats       Chats
	bus         *bus.Bus
	sessionName string
}

// NewChatService creates a new chat service.
func NewChatService(chats Chats, b *bus.Bus, sessionName string) *ChatService {
	return &ChatService{chats: chats, bus: b, sessionName: sessionName}
}

func (s *ChatService) ListConversations(ctx context.Context, _ *Empty) (*ListConversationsResponse, error) {
	convs, err := s.chats.Conversations(ctx)
	if err != nil {
		return nil, toStatus("list conversations", err)
	}
	return &ListConversationsResponse{Conversations: convs}, nil
}

func (s *ChatService) OpenChat(ctx context.Context, req *PeerRequest) (*HistoryResponse, error) {
	msgs, err := s.chats.OpenChat(ctx, req.PeerID)
	if err != nil {
		return nil, toStatus("open chat", err)
	}
	return &HistoryResponse{PeerID: req.PeerID, Messages: msgs}, nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *Empty) (*Empty, error) {
	s.chats.CloseChat()
	return &Empty{}, nil
}

func (s *ChatService) GetHistory(ctx context.Context, req *PeerRequest) (*HistoryResponse, error) {
	msgs, err := s.chats.History(ctx, req.PeerID)
	if err != nil {
		return nil, toStatus("get history", err)
	}
	return &HistoryResponse{PeerID: req.PeerID, Messages: msgs}, nil
}

func (s *ChatService) MarkRead(ctx context.Context, req *PeerRequest) (*MarkReadResponse, error) {
	n, err := s.chats.MarkRead(ctx, req.PeerID)
	if err != nil {
		return nil, toStatus("mark read", err)
	}
	return &MarkReadResponse{Updated: n}, nil
}

func (s *ChatService) ListFriendRequests(_ context.Context, _ *Empty) (*ListFriendRequestsResponse, error) {
	reqs, err := s.chats.FriendRequests()
	if err != nil {
		return nil, toStatus("list friend requests", err)
	}
	return &ListFriendRequestsResponse{Requests: reqs}, nil
}

func (s *ChatService) RespondFriendRequest(ctx context.Context, req *RespondFriendRequestRequest) (*Empty, error) {
	if err := s.chats.RespondFriendRequest(ctx, req.RequestID, req.Accept); err != nil {
		return nil, toStatus("respond to friend request", err)
	}
	return &Empty{}, nil
}

func (s *ChatService) AddFriend(ctx context.Context, req *AddFriendRequest) (*AddFriendResponse, error) {
	c, err := s.chats.AddFriend(ctx, req.Email)
	if err != nil {
		return nil, toStatus("add friend", err)
	}
	return &AddFriendResponse{Contact: *c}, nil
}

func (s *ChatService) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, watchBufferSize)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(&EventEnvelope{
				EventID:          uuid.New().String(),
				Session:          s.sessionName,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          encodePayload(evt.Payload),
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// encodePayload renders an event payload as JSON. Error values are turned
// into strings since they do not marshal on their own.
func encodePayload(p any) json.RawMessage {
	switch v := p.(type) {
	case nil:
		return nil
	case live.Disconnect:
		p = map[string]any{"error": errString(v.Err), "next_retry_ms": v.NextRetry.Milliseconds()}
	case intsync.CatchUpResult:
		p = map[string]any{
			"user_id":     v.UserID,
			"fetched":     v.Fetched,
			"stored":      v.Stored,
			"duration_ms": v.Duration.Milliseconds(),
			"error":       errString(v.Err),
		}
	case outbox.SendFailure:
		p = map[string]any{"peer_id": v.PeerID, "error": errString(v.Err)}
	case error:
		p = map[string]any{"error": v.Error()}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return data
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
