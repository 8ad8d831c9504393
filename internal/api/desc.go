package api

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified service names.
const (
	SessionServiceName = "chatd.v1.SessionService"
	ChatServiceName    = "chatd.v1.ChatService"
	MessageServiceName = "chatd.v1.MessageService"
)

// SessionServer is implemented by SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*GetStatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	Signup(context.Context, *SignupRequest) (*Empty, error)
	SetUsername(context.Context, *SetUsernameRequest) (*LoginResponse, error)
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// ChatServer is implemented by ChatService.
type ChatServer interface {
	ListConversations(context.Context, *Empty) (*ListConversationsResponse, error)
	OpenChat(context.Context, *PeerRequest) (*HistoryResponse, error)
	CloseChat(context.Context, *Empty) (*Empty, error)
	GetHistory(context.Context, *PeerRequest) (*HistoryResponse, error)
	MarkRead(context.Context, *PeerRequest) (*MarkReadResponse, error)
	ListFriendRequests(context.Context, *Empty) (*ListFriendRequestsResponse, error)
	RespondFriendRequest(context.Context, *RespondFriendRequestRequest) (*Empty, error)
	AddFriend(context.Context, *AddFriendRequest) (*AddFriendResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// MessageServer is implemented by MessageService.
type MessageServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
}

// unary builds a method descriptor that decodes Req and dispatches to call.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
		unary(SessionServiceName, "Signup", SessionServer.Signup),
		unary(SessionServiceName, "SetUsername", SessionServer.SetUsername),
	},
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListConversations", ChatServer.ListConversations),
		unary(ChatServiceName, "OpenChat", ChatServer.OpenChat),
		unary(ChatServiceName, "CloseChat", ChatServer.CloseChat),
		unary(ChatServiceName, "GetHistory", ChatServer.GetHistory),
		unary(ChatServiceName, "MarkRead", ChatServer.MarkRead),
		unary(ChatServiceName, "ListFriendRequests", ChatServer.ListFriendRequests),
		unary(ChatServiceName, "RespondFriendRequest", ChatServer.RespondFriendRequest),
		unary(ChatServiceName, "AddFriend", ChatServer.AddFriend),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchEvents",
		Handler:       watchEventsHandler,
		ServerStreams: true,
	}},
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "Send", MessageServer.Send),
	},
}

type watchEventsServer struct {
	grpc.ServerStream
}

func (s *watchEventsServer) Send(e *EventEnvelope) error {
	return s.ServerStream.SendMsg(e)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).WatchEvents(in, &watchEventsServer{stream})
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&chatServiceDesc, srv)
}

// RegisterMessageServer registers srv on s.
func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&messageServiceDesc, srv)
}
