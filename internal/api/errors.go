package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/chatd/internal/account"
	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/friends"
	"github.com/matheus3301/chatd/internal/outbox"
	"github.com/matheus3301/chatd/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, auth.ErrNotLoggedIn), errors.Is(err, backend.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, outbox.ErrEmptyContent), errors.Is(err, account.ErrInvalidPeer),
		errors.Is(err, account.ErrInvalidProfile):
		code = codes.InvalidArgument
	case errors.Is(err, friends.ErrUnknownRequest):
		code = codes.NotFound
	case errors.Is(err, outbox.ErrSendFailed), errors.Is(err, store.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		switch backend.StatusOf(err) {
		case http.StatusNotFound:
			code = codes.NotFound
		case http.StatusConflict:
			code = codes.AlreadyExists
		default:
			code = codes.Internal
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
