package session

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kilimopesa/internal/domain"
)

// fakeAPI is a scripted domain.AuthAPI. Unset funcs answer with a
// server error so unexpected calls fail loudly.
type fakeAPI struct {
	mu       sync.Mutex
	attached string
	calls    map[string]int

	currentUser func(ctx context.Context) (*domain.User, error)
	login       func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	register    func(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	verify      func(ctx context.Context, req domain.VerifyEmailRequest) (*domain.AuthResponse, error)
	resend      func(ctx context.Context, req domain.ResendVerificationRequest) (*domain.AuthResponse, error)
	logout      func(ctx context.Context) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

var errUnscripted = domain.WrapServerError(500, "unscripted call", nil)

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) Attached() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*domain.User, error) {
	f.record("current_user")
	if f.currentUser == nil {
		return nil, errUnscripted
	}
	return f.currentUser(ctx)
}

func (f *fakeAPI) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	f.record("login")
	if f.login == nil {
		return nil, errUnscripted
	}
	return f.login(ctx, req)
}

func (f *fakeAPI) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	f.record("register")
	if f.register == nil {
		return nil, errUnscripted
	}
	return f.register(ctx, req)
}

func (f *fakeAPI) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) (*domain.AuthResponse, error) {
	f.record("verify")
	if f.verify == nil {
		return nil, errUnscripted
	}
	return f.verify(ctx, req)
}

func (f *fakeAPI) ResendVerification(ctx context.Context, req domain.ResendVerificationRequest) (*domain.AuthResponse, error) {
	f.record("resend")
	if f.resend == nil {
		return nil, errUnscripted
	}
	return f.resend(ctx, req)
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.record("logout")
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx)
}

func (f *fakeAPI) AttachCredential(credential string) {
	f.mu.Lock()
	f.attached = credential
	f.mu.Unlock()
}

func (f *fakeAPI) DetachCredential() {
	f.mu.Lock()
	f.attached = ""
	f.mu.Unlock()
}

// MockCredentialStore implements domain.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Load(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) Save(ctx context.Context, credential string) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *MockCredentialStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCredentialStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
