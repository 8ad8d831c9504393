package api

import (
	"context"

	"github.com/matheus3301/chatd/internal/store"
)

// Messenger sends messages as the logged-in user.
type Messenger interface {
	Send(ctx context.Context, peerID int64, content string) (*store.Message, error)
}

// MessageService implements MessageServer.
type MessageService struct {
	messenger Messenger
}

// NewMessageService creates a new message service.
func NewMessageService(m Messenger) *MessageService {
	return &MessageService{messenger: m}
}

func (s *MessageService) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	msg, err := s.messenger.Send(ctx, req.PeerID, req.Content)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &SendResponse{Message: *msg}, nil
}
