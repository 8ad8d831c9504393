package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/matheus3301/chatd/internal/api"
	"github.com/matheus3301/chatd/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Server is the control plane gRPC endpoint on the session socket.
type Server struct {
	grpc   *grpc.Server
	ln     net.Listener
	path   string
	logger *zap.Logger
}

// NewServer binds the session socket and registers the three services.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
	messageSvc *api.MessageService,
) (*Server, error) {
	path := p.SocketPath
	if path == "" {
		path = session.SocketPath(p.SessionName)
	}
	ln, err := listenUnix(path)
	if err != nil {
		return nil, err
	}

	rpcLog := logger.Named("rpc")
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoverUnary(rpcLog), logUnary(rpcLog)),
		grpc.ChainStreamInterceptor(recoverStream(rpcLog), logStream(rpcLog)),
	)
	api.RegisterSessionServer(srv, sessionSvc)
	api.RegisterChatServer(srv, chatSvc)
	api.RegisterMessageServer(srv, messageSvc)

	return &Server{grpc: srv, ln: ln, path: path, logger: logger}, nil
}

// listenUnix replaces any stale socket at path and restricts it to the owner.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("unary",
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
			zap.Stringer("code", grpcstatus.Code(err)),
		)
		return resp, err
	}
}

func logStream(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		logger.Debug("stream opened", zap.String("method", info.FullMethod))
		start := time.Now()
		err := handler(srv, ss)
		logger.Debug("stream closed",
			zap.String("method", info.FullMethod),
			zap.Duration("open", time.Since(start)),
			zap.Stringer("code", grpcstatus.Code(err)),
		)
		return err
	}
}

func recoverUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicked(logger, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

func recoverStream(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicked(logger, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

func panicked(logger *zap.Logger, method string, r any) error {
	logger.Error("handler panic", zap.String("method", method), zap.Any("panic", r), zap.Stack("stack"))
	return grpcstatus.Errorf(codes.Internal, "%s: internal error", method)
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("control socket listening", zap.String("socket", s.path))
	if err := s.grpc.Serve(s.ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls, cutting open event streams once ctx expires,
// then removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control socket closing")
	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
		<-drained
	}
	_ = os.Remove(s.path)
}
