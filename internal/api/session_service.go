package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
	intsync "github.com/matheus3301/chatd/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Account is the session the control plane drives. *account.Coordinator
// implements it.
type Account interface {
	Login(ctx context.Context, email, password string) (auth.Identity, error)
	Logout(ctx context.Context) error
	Signup(ctx context.Context, email, password, username string) error
	SetUsername(ctx context.Context, username string) (auth.Identity, error)
	UserID() (int64, error)
	ActiveChat() int64
}

// CheckpointReader reports the last catch-up for a user.
type CheckpointReader interface {
	Last(ctx context.Context, userID int64) (intsync.Checkpoint, bool, error)
}

// SessionService implements SessionServer.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	account     Account
	db          *store.DB
	checkpoints CheckpointReader
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, acct Account, db *store.DB, cp CheckpointReader) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		account:     acct,
		db:          db,
		checkpoints: cp,
	}
}

func (s *SessionService) GetStatus(ctx context.Context, _ *Empty) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Session:           s.sessionName,
		Status:            string(s.machine.Current()),
		StatusSinceUnixMs: s.machine.Since().UnixMilli(),
		ActiveChat:        s.account.ActiveChat(),
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
	}

	userID, err := s.account.UserID()
	if err != nil {
		return resp, nil
	}
	resp.LoggedIn = true
	resp.UserID = userID

	// Counts are best effort; the store may still be opening.
	if s.db != nil {
		if n, err := s.db.MessageCount(ctx); err == nil {
			resp.MessageCount = n
		}
		if n, err := s.db.ConversationCount(ctx, userID); err == nil {
			resp.ConversationCount = n
		}
	}
	if s.checkpoints != nil {
		if cp, ok, err := s.checkpoints.Last(ctx, userID); err == nil && ok {
			resp.LastCatchUpUnixMs = cp.At.UnixMilli()
			resp.LastCatchUpCount = cp.Count
		}
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "email and password are required")
	}
	id, err := s.account.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &LoginResponse{UserID: id.UserID, Username: id.Username}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.account.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &Empty{}, nil
}

func (s *SessionService) Signup(ctx context.Context, req *SignupRequest) (*Empty, error) {
	if err := s.account.Signup(ctx, req.Email, req.Password, req.Username); err != nil {
		return nil, toStatus("signup", err)
	}
	return &Empty{}, nil
}

func (s *SessionService) SetUsername(ctx context.Context, req *SetUsernameRequest) (*LoginResponse, error) {
	id, err := s.account.SetUsername(ctx, req.Username)
	if err != nil {
		return nil, toStatus("set username", err)
	}
	return &LoginResponse{UserID: id.UserID, Username: id.Username}, nil
}
