package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/domain"
)

// loginPayload is what the server expects: email or username plus password
type loginPayload struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CurrentUser fetches the identity behind the attached credential
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if _, err := c.do(ctx, http.MethodGet, apipaths.CurrentUser, nil, &user); err != nil {
		return nil, err
	}
	if user.Username == "" && user.ID == 0 {
		return nil, domain.WrapServerError(http.StatusOK, "server returned an empty user", nil)
	}
	return &user, nil
}

// Login exchanges credentials for a session. The returned Token is the
// credential to persist: the token field for bearer sessions, the session
// cookie for cookie sessions.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	payload := loginPayload{Password: req.Password}
	if strings.Contains(req.Identifier, "@") {
		payload.Email = req.Identifier
	} else {
		payload.Username = req.Identifier
	}

	resp, err := c.authCall(ctx, apipaths.Login, payload)
	if err != nil {
		return nil, err
	}

	if resp.Token == "" && c.opts.Transport == config.TransportCookie {
		resp.Token = c.sessionCookie()
	}
	if resp.Token == "" {
		return nil, domain.WrapServerError(http.StatusOK, "login response carried no credential", nil)
	}
	if resp.User == nil {
		return nil, domain.WrapServerError(http.StatusOK, "login response carried no user", nil)
	}
	return resp, nil
}

// Register creates an unverified account
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	return c.authCall(ctx, apipaths.Register, registerPayload{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
}

// VerifyEmail submits the code mailed after registration
func (c *Client) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) (*domain.AuthResponse, error) {
	return c.authCall(ctx, apipaths.VerifyEmail, req)
}

// ResendVerification asks for a new verification code
func (c *Client) ResendVerification(ctx context.Context, req domain.ResendVerificationRequest) (*domain.AuthResponse, error) {
	return c.authCall(ctx, apipaths.ResendVerification, req)
}

// Logout ends the server-side session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, apipaths.Logout, struct{}{}, nil)
	return err
}

func (c *Client) authCall(ctx context.Context, path string, payload any) (*domain.AuthResponse, error) {
	data, err := c.do(ctx, http.MethodPost, path, payload, nil)
	if err != nil {
		return nil, err
	}

	// Acks are implementation-defined; a body that is not an object is
	// kept raw rather than treated as a failure.
	var resp domain.AuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Debug("non-object auth response", "path", path, "error", err)
		resp = domain.AuthResponse{}
	}
	resp.Raw = json.RawMessage(data)
	return &resp, nil
}
