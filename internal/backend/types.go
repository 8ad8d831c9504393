package backend

import (
	"bytes"
	"encoding/json"
)

// Credentials is the body of /auth/login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// LoginResponse is a successful /auth/login reply.
type LoginResponse struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is a successful /auth/refresh reply.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Contact is a friend as returned by /friends and /friends/search.
type Contact struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type contactsResponse struct {
	Friends []Contact `json:"friends"`
}

// FriendRequest is a pending incoming request.
type FriendRequest struct {
	ID             int64  `json:"friend_request_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	SenderEmail    string `json:"sender_email"`
}

type friendRequestsResponse struct {
	FriendRequests []FriendRequest `json:"friend_requests"`
}

type sendFriendRequest struct {
	FriendID int64 `json:"friend_id"`
}

// FriendRequestResponse values accepted by RespondFriendRequest.
const (
	ResponseAccept = "accept"
	ResponseReject = "reject"
)

type respondFriendRequest struct {
	SenderID int64  `json:"sender_id"`
	Response string `json:"response"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

// Message is the wire form of a direct message, used by the unread fetch and
// the push channel.
type Message struct {
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
}

// unreadResponse accepts both {"messages": [...]} and a bare array.
type unreadResponse struct {
	Messages []Message `json:"messages"`
}

func (u *unreadResponse) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &u.Messages)
	}
	type plain unreadResponse
	return json.Unmarshal(data, (*plain)(u))
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
