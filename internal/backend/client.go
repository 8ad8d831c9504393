// Package backend is the typed REST client for the chat server.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/matheus3301/chatd/internal/logging"
	"go.uber.org/zap"
)

// TokenSource supplies bearer tokens for authenticated calls.
type TokenSource interface {
	// AccessToken returns the current access token.
	AccessToken(ctx context.Context) (string, error)
	// Refresh exchanges the refresh token for a new pair and returns the new
	// access token. A failed refresh ends the session.
	Refresh(ctx context.Context) (string, error)
}

// Options configures the HTTP layer shared by AuthAPI and Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

func newHTTP(opts Options) *resty.Client {
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chatd/1.0")
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	return c
}

func newRequest(ctx context.Context, hc *resty.Client) *resty.Request {
	return hc.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
}

// AuthAPI holds the endpoints that do not need a bearer token.
type AuthAPI struct {
	http *resty.Client
}

// NewAuthAPI creates the unauthenticated client.
func NewAuthAPI(opts Options) *AuthAPI {
	return &AuthAPI{http: newHTTP(opts)}
}

// Login exchanges credentials for a token pair.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := a.post(ctx, "/auth/login", Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account. The server replies with no session; call
// Login afterwards.
func (a *AuthAPI) Signup(ctx context.Context, req SignupRequest) error {
	return a.post(ctx, "/auth/signup", req, nil)
}

// Refresh exchanges a refresh token for a new pair.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	if err := a.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) post(ctx context.Context, path string, body, result any) error {
	var failure errorBody
	req := newRequest(ctx, a.http).SetBody(body).SetError(&failure)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(http.MethodPost, path, resp, &failure)
	}
	return nil
}

// Client calls the authenticated endpoints. A 401 triggers exactly one token
// refresh and one retry of the original request.
type Client struct {
	http   *resty.Client
	tokens TokenSource
	logger *zap.Logger
}

// NewClient creates an authenticated client.
func NewClient(opts Options, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		http:   newHTTP(opts),
		tokens: tokens,
		logger: logging.OrNop(logger),
	}
}

type call struct {
	method string
	path   string
	query  map[string]string
	body   any
	result any
}

func (c *Client) do(ctx context.Context, cl call) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", cl.method, cl.path, ErrUnauthenticated, err)
	}

	resp, failure, err := c.send(ctx, cl, token)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.logger.Info("access token rejected, refreshing", zap.String("path", cl.path))
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("%s %s: %w: %w", cl.method, cl.path, ErrUnauthenticated, err)
		}
		resp, failure, err = c.send(ctx, cl, token)
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, apiError(cl.method, cl.path, resp, failure))
		}
	}
	if resp.IsError() {
		return apiError(cl.method, cl.path, resp, failure)
	}
	return nil
}

func (c *Client) send(ctx context.Context, cl call, token string) (*resty.Response, *errorBody, error) {
	failure := &errorBody{}
	req := newRequest(ctx, c.http).
		SetAuthToken(token).
		SetError(failure)
	if cl.query != nil {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}
	if cl.result != nil {
		req.SetResult(cl.result)
	}
	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	return resp, failure, nil
}

func apiError(method, path string, resp *resty.Response, failure *errorBody) *APIError {
	msg := failure.Error
	if msg == "" {
		msg = failure.Message
	}
	return &APIError{Method: method, Path: path, Status: resp.StatusCode(), Message: msg}
}

// Friends returns the user's contacts.
func (c *Client) Friends(ctx context.Context) ([]Contact, error) {
	var out contactsResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/friends", result: &out}); err != nil {
		return nil, err
	}
	return out.Friends, nil
}

// FriendRequests returns pending incoming friend requests.
func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var out friendRequestsResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/friends/requests", result: &out}); err != nil {
		return nil, err
	}
	return out.FriendRequests, nil
}

// SendFriendRequest asks friendID to become a contact.
func (c *Client) SendFriendRequest(ctx context.Context, friendID int64) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/friends/requests", body: sendFriendRequest{FriendID: friendID}})
}

// RespondFriendRequest accepts or rejects a pending request.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID, senderID int64, response string) error {
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   "/friends/requests/" + strconv.FormatInt(requestID, 10),
		body:   respondFriendRequest{SenderID: senderID, Response: response},
	})
}

// SearchByEmail looks up a user by exact email.
func (c *Client) SearchByEmail(ctx context.Context, email string) (*Contact, error) {
	var out Contact
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/friends/search",
		query:  map[string]string{"email": email},
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUsername changes the display name of the current user.
func (c *Client) UpdateUsername(ctx context.Context, username string) error {
	return c.do(ctx, call{method: http.MethodPut, path: "/auth/username", body: usernameRequest{Username: username}})
}

// SendMessage submits a direct message.
func (c *Client) SendMessage(ctx context.Context, recipientID int64, content string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/messages",
		body:   SendMessageRequest{RecipientID: recipientID, Content: content},
	})
}

// UnreadMessages fetches messages addressed to the user that the server has
// not yet delivered.
func (c *Client) UnreadMessages(ctx context.Context) ([]Message, error) {
	var out unreadResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/messages/unread", result: &out}); err != nil {
		return nil, err
	}
	return out.Messages, nil
}
