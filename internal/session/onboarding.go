package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kilimopesa/internal/domain"
)

// ErrNoPendingVerification is returned by Verify and Resend before Register
var ErrNoPendingVerification = errors.New("no pending email verification")

// Onboarding carries a new account from registration through email
// verification to a signed in session. The email and password are kept in
// memory only until verification succeeds or Cancel is called.
type Onboarding struct {
	store *Store

	mu       sync.Mutex
	pending  *domain.VerificationRequest
	password string
}

// NewOnboarding returns a flow bound to store
func NewOnboarding(store *Store) *Onboarding {
	return &Onboarding{store: store}
}

// Register creates the account and moves the flow to the verification step
func (o *Onboarding) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	resp, err := o.store.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.pending = &domain.VerificationRequest{Email: strings.TrimSpace(req.Email)}
	o.password = req.Password
	o.mu.Unlock()

	return resp, nil
}

// Pending returns the verification step in progress
func (o *Onboarding) Pending() (domain.VerificationRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return domain.VerificationRequest{}, false
	}
	return *o.pending, true
}

// Verify submits code for the registered email. When the server does not
// sign the session in itself, the flow logs in with the registered
// credentials. A rejected code keeps the step pending so it can be retried.
func (o *Onboarding) Verify(ctx context.Context, code string) (*domain.AuthResponse, error) {
	o.mu.Lock()
	if o.pending == nil {
		o.mu.Unlock()
		return nil, ErrNoPendingVerification
	}
	email, password := o.pending.Email, o.password
	o.pending.Code = code
	o.mu.Unlock()

	resp, err := o.store.VerifyEmail(ctx, domain.VerifyEmailRequest{Email: email, Code: code})
	if err != nil {
		return nil, err
	}

	o.Cancel()

	if !o.store.Snapshot().Authenticated() && password != "" {
		if _, err := o.store.Login(ctx, domain.LoginRequest{Identifier: email, Password: password}); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Resend asks for a new code for the registered email
func (o *Onboarding) Resend(ctx context.Context) (*domain.AuthResponse, error) {
	pending, ok := o.Pending()
	if !ok {
		return nil, ErrNoPendingVerification
	}
	return o.store.ResendVerification(ctx, domain.ResendVerificationRequest{Email: pending.Email})
}

// Cancel discards the pending step
func (o *Onboarding) Cancel() {
	o.mu.Lock()
	o.pending = nil
	o.password = ""
	o.mu.Unlock()
}
