// Package ctl connects command-line tools to a running daemon.
package ctl

import (
	"fmt"

	"github.com/matheus3301/chatd/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *api.SessionClient
	Chat    *api.ChatClient
	Message *api.MessageClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: api.NewSessionClient(conn),
		Chat:    api.NewChatClient(conn),
		Message: api.NewMessageClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
