// Package auth owns the session's credentials: login, token refresh and
// logout, persisted under the session directory.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/logging"
	"go.uber.org/zap"
)

// ErrNotLoggedIn is returned when the session has no usable credentials.
var ErrNotLoggedIn = errors.New("not logged in")

// expirySkew refreshes tokens slightly before the server would reject them.
const expirySkew = 10 * time.Second

// Exchanger is the unauthenticated part of the backend.
type Exchanger interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.TokenPair, error)
}

// LogoutReason is the payload of auth.logged_out events.
type LogoutReason string

const (
	ReasonUser          LogoutReason = "user"
	ReasonRefreshFailed LogoutReason = "refresh_failed"
)

// Identity is the payload of auth.logged_in events.
type Identity struct {
	UserID   int64
	Username string
}

// Manager implements backend.TokenSource over persisted credentials.
type Manager struct {
	mu     sync.Mutex
	path   string
	api    Exchanger
	bus    *bus.Bus
	logger *zap.Logger
	creds  *Credentials
	now    func() time.Time
}

// NewManager loads any credentials persisted at path.
func NewManager(path string, api Exchanger, b *bus.Bus, logger *zap.Logger) (*Manager, error) {
	creds, err := loadCredentials(path)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &Manager{
		path:   path,
		api:    api,
		bus:    b,
		logger: logging.OrNop(logger),
		creds:  creds,
		now:    time.Now,
	}, nil
}

// Login authenticates against the backend and persists the result.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return Identity{}, fmt.Errorf("login: %w", err)
	}
	creds := &Credentials{
		UserID:       resp.ID,
		Username:     resp.Username,
		Email:        email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}

	m.mu.Lock()
	if err := saveCredentials(m.path, creds); err != nil {
		m.mu.Unlock()
		return Identity{}, fmt.Errorf("save credentials: %w", err)
	}
	m.creds = creds
	m.mu.Unlock()

	id := Identity{UserID: resp.ID, Username: resp.Username}
	m.logger.Info("logged in", zap.Int64("user_id", id.UserID), zap.String("username", id.Username))
	m.bus.Emit(bus.KindLoggedIn, id)
	return id, nil
}

// Logout forgets the credentials. It is a no-op when already logged out.
func (m *Manager) Logout() error {
	return m.clear(ReasonUser)
}

func (m *Manager) clear(reason LogoutReason) error {
	m.mu.Lock()
	had := m.creds != nil
	m.creds = nil
	err := os.Remove(m.path)
	m.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	if had {
		m.logger.Info("logged out", zap.String("reason", string(reason)))
		m.bus.Emit(bus.KindLoggedOut, reason)
	}
	return nil
}

// SetUsername records a new display name for the logged-in user.
func (m *Manager) SetUsername(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return ErrNotLoggedIn
	}
	next := *m.creds
	next.Username = name
	if err := saveCredentials(m.path, &next); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	m.creds = &next
	return nil
}

// refreshRejected reports whether the backend answered the refresh call and
// refused the token.
func refreshRejected(err error) bool {
	switch backend.StatusOf(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// LoggedIn reports whether credentials are present.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds != nil
}

// Identity returns the logged-in user, or ErrNotLoggedIn.
func (m *Manager) Identity() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Identity{}, ErrNotLoggedIn
	}
	return Identity{UserID: m.creds.UserID, Username: m.creds.Username}, nil
}

// AccessToken returns a token that is not known to be expired, refreshing
// first when its exp claim has passed. Tokens that are not JWTs are returned
// as-is and left for the server to judge.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	token := m.creds.AccessToken
	m.mu.Unlock()

	if exp, ok := expiry(token); ok && !m.now().Add(expirySkew).Before(exp) {
		m.logger.Debug("access token expired, refreshing")
		return m.Refresh(ctx)
	}
	return token, nil
}

// Refresh exchanges the refresh token for a new pair. When the backend
// rejects the refresh token the session is logged out and the error wraps
// ErrNotLoggedIn. Cancellation and transport failures keep the credentials.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	refreshToken := m.creds.RefreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		_ = m.clear(ReasonRefreshFailed)
		return "", fmt.Errorf("%w: no refresh token", ErrNotLoggedIn)
	}

	pair, err := m.api.Refresh(ctx, refreshToken)
	if err != nil && !refreshRejected(err) {
		m.logger.Warn("token refresh did not complete, keeping credentials", zap.Error(err))
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if err != nil {
		m.logger.Warn("refresh token rejected, logging out", zap.Error(err))
		_ = m.clear(ReasonRefreshFailed)
		return "", fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
	}

	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	m.creds.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		m.creds.RefreshToken = pair.RefreshToken
	}
	saveErr := saveCredentials(m.path, m.creds)
	m.mu.Unlock()

	if saveErr != nil {
		m.logger.Warn("persist refreshed credentials", zap.Error(saveErr))
	}
	m.bus.Emit(bus.KindTokenRefreshed, nil)
	return pair.AccessToken, nil
}

// expiry reads the exp claim without verifying the signature.
func expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
