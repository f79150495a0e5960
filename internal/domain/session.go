package domain

import "encoding/json"

// Status is the lifecycle state of the session
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// User is the authenticated identity as returned by the API
type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// Clone returns a copy so callers never share the store's user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Session is a point-in-time view of the authentication state.
// Status is authenticated exactly when User is set.
type Session struct {
	Status     Status `json:"status"`
	User       *User  `json:"user,omitempty"`
	Credential string `json:"-"`
}

// Authenticated reports whether a user is signed in
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Clone deep-copies the session
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	return s
}

// Transition describes a change of session state, delivered to observers
type Transition struct {
	From Session
	To   Session
}

// SignedOut reports whether the transition ended an authenticated session
func (t Transition) SignedOut() bool {
	return t.From.Status == StatusAuthenticated && t.To.Status != StatusAuthenticated
}

// SignedIn reports whether the transition started an authenticated session
func (t Transition) SignedIn() bool {
	return t.From.Status != StatusAuthenticated && t.To.Status == StatusAuthenticated
}

// VerificationRequest is the transient state between registration and
// email verification. It is never persisted.
type VerificationRequest struct {
	Email string
	Code  string
}

// ============================================================================
// Request/Response Types
// ============================================================================

// LoginRequest carries either an email or a username as Identifier
type LoginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

// RegisterRequest is the registration form
type RegisterRequest struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty" form:"confirm_password"`
}

// VerifyEmailRequest submits the code mailed after registration
type VerifyEmailRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

// ResendVerificationRequest asks the server to mail a new code
type ResendVerificationRequest struct {
	Email string `json:"email" form:"email"`
}

// AuthResponse is the decoded body of the auth endpoints. Only login is
// guaranteed to fill Token and User; the other endpoints return an
// implementation-defined ack which is kept in Raw.
type AuthResponse struct {
	Token   string          `json:"token,omitempty"`
	User    *User           `json:"user,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// HasSession reports whether the response carries a usable session
func (r *AuthResponse) HasSession() bool {
	return r != nil && r.Token != "" && r.User != nil
}
