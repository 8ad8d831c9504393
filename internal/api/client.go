package api

import (
	"context"

	"google.golang.org/grpc"
)

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient calls SessionService.
type SessionClient struct{ cc grpc.ClientConnInterface }

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient { return &SessionClient{cc} }

func (c *SessionClient) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", &Empty{})
}

func (c *SessionClient) Login(ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, SessionServiceName, "Login", in)
}

func (c *SessionClient) Logout(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.cc, SessionServiceName, "Logout", &Empty{})
	return err
}

func (c *SessionClient) Signup(ctx context.Context, in *SignupRequest) error {
	_, err := invoke[Empty](ctx, c.cc, SessionServiceName, "Signup", in)
	return err
}

func (c *SessionClient) SetUsername(ctx context.Context, username string) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, SessionServiceName, "SetUsername", &SetUsernameRequest{Username: username})
}

// ChatClient calls ChatService.
type ChatClient struct{ cc grpc.ClientConnInterface }

func NewChatClient(cc grpc.ClientConnInterface) *ChatClient { return &ChatClient{cc} }

func (c *ChatClient) ListConversations(ctx context.Context) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, ChatServiceName, "ListConversations", &Empty{})
}

func (c *ChatClient) OpenChat(ctx context.Context, peerID int64) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c.cc, ChatServiceName, "OpenChat", &PeerRequest{PeerID: peerID})
}

func (c *ChatClient) CloseChat(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "CloseChat", &Empty{})
	return err
}

func (c *ChatClient) GetHistory(ctx context.Context, peerID int64) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c.cc, ChatServiceName, "GetHistory", &PeerRequest{PeerID: peerID})
}

func (c *ChatClient) MarkRead(ctx context.Context, peerID int64) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, ChatServiceName, "MarkRead", &PeerRequest{PeerID: peerID})
}

func (c *ChatClient) ListFriendRequests(ctx context.Context) (*ListFriendRequestsResponse, error) {
	return invoke[ListFriendRequestsResponse](ctx, c.cc, ChatServiceName, "ListFriendRequests", &Empty{})
}

func (c *ChatClient) RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "RespondFriendRequest", &RespondFriendRequestRequest{RequestID: requestID, Accept: accept})
	return err
}

func (c *ChatClient) AddFriend(ctx context.Context, email string) (*AddFriendResponse, error) {
	return invoke[AddFriendResponse](ctx, c.cc, ChatServiceName, "AddFriend", &AddFriendRequest{Email: email})
}

// EventReceiver is the client side of WatchEvents.
type EventReceiver struct{ stream grpc.ClientStream }

// Recv blocks for the next event.
func (r *EventReceiver) Recv() (*EventEnvelope, error) {
	e := new(EventEnvelope)
	if err := r.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

// WatchEvents opens an event stream. Cancel ctx to end it.
func (c *ChatClient) WatchEvents(ctx context.Context, in *WatchEventsRequest) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &chatServiceDesc.Streams[0], "/"+ChatServiceName+"/WatchEvents", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}

// MessageClient calls MessageService.
type MessageClient struct{ cc grpc.ClientConnInterface }

func NewMessageClient(cc grpc.ClientConnInterface) *MessageClient { return &MessageClient{cc} }

func (c *MessageClient) Send(ctx context.Context, peerID int64, content string) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, MessageServiceName, "Send", &SendRequest{PeerID: peerID, Content: content})
}
