package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	login      *backend.LoginResponse
	loginErr   error
	pair       *backend.TokenPair
	refreshErr error
	refreshed  []string
}

func (f *fakeExchanger) Login(context.Context, string, string) (*backend.LoginResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeExchanger) Refresh(_ context.Context, token string) (*backend.TokenPair, error) {
	f.refreshed = append(f.refreshed, token)
	return f.pair, f.refreshErr
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func newManager(t *testing.T, ex Exchanger, b *bus.Bus) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	m, err := NewManager(path, ex, b, nil)
	require.NoError(t, err)
	return m, path
}

func TestLoginPersistsCredentials(t *testing.T) {
	access := signed(t, time.Now().Add(time.Hour))
	ex := &fakeExchanger{login: &backend.LoginResponse{ID: 7, Username: "ann", AccessToken: access, RefreshToken: "r1"}}
	b := bus.New()
	ch, unsub := b.Subscribe("auth.", 4)
	defer unsub()

	m, path := newManager(t, ex, b)
	assert.False(t, m.LoggedIn())

	id, err := m.Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Username: "ann"}, id)

	select {
	case evt := <-ch:
		assert.Equal(t, bus.KindLoggedIn, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no auth.logged_in event")
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// A new manager over the same file resumes the session.
	again, err := NewManager(path, ex, nil, nil)
	require.NoError(t, err)
	got, err := again.Identity()
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	token, err := again.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access, token)
}

func TestLoginFailureKeepsLoggedOut(t *testing.T) {
	m, _ := newManager(t, &fakeExchanger{loginErr: errors.New("bad password")}, nil)
	_, err := m.Login(context.Background(), "a", "b")
	require.Error(t, err)
	assert.False(t, m.LoggedIn())
	_, err = m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestAccessTokenRefreshesExpiredJWT(t *testing.T) {
	fresh := signed(t, time.Now().Add(time.Hour))
	ex := &fakeExchanger{
		login: &backend.LoginResponse{ID: 1, AccessToken: signed(t, time.Now().Add(-time.Minute)), RefreshToken: "r1"},
		pair:  &backend.TokenPair{AccessToken: fresh, RefreshToken: "r2"},
	}
	m, path := newManager(t, ex, nil)
	_, err := m.Login(context.Background(), "a", "b")
	require.NoError(t, err)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.Equal(t, []string{"r1"}, ex.refreshed)

	persisted, err := loadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "r2", persisted.RefreshToken)
}

func TestAccessTokenOpaqueTokenPassesThrough(t *testing.T) {
	ex := &fakeExchanger{login: &backend.LoginResponse{ID: 1, AccessToken: "opaque", RefreshToken: "r1"}}
	m, _ := newManager(t, ex, nil)
	_, err := m.Login(context.Background(), "a", "b")
	require.NoError(t, err)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque", token)
	assert.Empty(t, ex.refreshed)
}

func TestRefreshFailureLogsOut(t *testing.T) {
	ex := &fakeExchanger{
		login:      &backend.LoginResponse{ID: 1, AccessToken: "a", RefreshToken: "r1"},
		refreshErr: &backend.APIError{Method: http.MethodPost, Path: "/auth/refresh", Status: http.StatusUnauthorized},
	}
	b := bus.New()
	m, path := newManager(t, ex, b)
	_, err := m.Login(context.Background(), "a", "b")
	require.NoError(t, err)

	ch, unsub := b.Subscribe("auth.logged_out", 1)
	defer unsub()

	_, err = m.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.False(t, m.LoggedIn())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "credentials file removed")

	select {
	case evt := <-ch:
		assert.Equal(t, ReasonRefreshFailed, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no auth.logged_out event")
	}
}

func TestRefreshInterruptedKeepsCredentials(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"cancelled", context.Canceled},
		{"transport", errors.New("dial tcp: connection refused")},
		{"server error", &backend.APIError{Method: http.MethodPost, Path: "/auth/refresh", Status: http.StatusBadGateway}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchanger{
				login:      &backend.LoginResponse{ID: 1, AccessToken: signed(t, time.Now().Add(-time.Minute)), RefreshToken: "r1"},
				refreshErr: tt.err,
			}
			b := bus.New()
			m, path := newManager(t, ex, b)
			_, err := m.Login(context.Background(), "a", "b")
			require.NoError(t, err)
			ch, unsub := b.Subscribe("auth.logged_out", 1)
			defer unsub()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = m.AccessToken(ctx)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotLoggedIn)
			assert.True(t, m.LoggedIn())
			_, statErr := os.Stat(path)
			assert.NoError(t, statErr, "credentials file kept")

			select {
			case evt := <-ch:
				t.Errorf("unexpected %s event", evt.Kind)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestLogoutIdempotent(t *testing.T) {
	ex := &fakeExchanger{login: &backend.LoginResponse{ID: 1, AccessToken: "a", RefreshToken: "r"}}
	b := bus.New()
	m, _ := newManager(t, ex, b)
	_, err := m.Login(context.Background(), "a", "b")
	require.NoError(t, err)

	ch, unsub := b.Subscribe("auth.logged_out", 4)
	defer unsub()

	require.NoError(t, m.Logout())
	require.NoError(t, m.Logout())
	assert.False(t, m.LoggedIn())

	assert.Len(t, ch, 1, "only the first logout emits")
}

func TestSetUsernamePersists(t *testing.T) {
	ex := &fakeExchanger{login: &backend.LoginResponse{ID: 7, Username: "ann", AccessToken: "a", RefreshToken: "r"}}
	m, path := newManager(t, ex, nil)

	assert.ErrorIs(t, m.SetUsername("x"), ErrNotLoggedIn)

	_, err := m.Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, m.SetUsername("anna"))

	reloaded, err := NewManager(path, ex, nil, nil)
	require.NoError(t, err)
	id, err := reloaded.Identity()
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Username: "anna"}, id)
}
