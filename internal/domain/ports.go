package domain

import (
	"context"
	"errors"
)

// ============================================================================
// Secondary Ports (Infrastructure)
// ============================================================================

// ErrCredentialNotFound is returned by CredentialStore.Load when nothing is stored
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore persists the session credential across restarts under a
// single fixed key.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Clear(ctx context.Context) error
	Close() error
}

// AuthAPI is the remote marketplace API as seen by the session store.
// Attach/Detach manage the credential sent with every outgoing request.
type AuthAPI interface {
	CurrentUser(ctx context.Context) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*AuthResponse, error)
	ResendVerification(ctx context.Context, req ResendVerificationRequest) (*AuthResponse, error)
	Logout(ctx context.Context) error

	AttachCredential(credential string)
	DetachCredential()
}
