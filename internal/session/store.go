// Package session owns the authentication state of the client: the signed
// in user, the credential sent with every request and the copy of that
// credential kept in durable storage. The three only ever change together.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/logger"
	"github.com/kilimopesa/internal/validation"
)

// ErrAlreadyInitialized is returned by a second call to Initialize
var ErrAlreadyInitialized = errors.New("session already initialized")

// Operation kinds guarded against overlapping calls
const (
	opLogin    = "login"
	opRegister = "register"
	opVerify   = "verify_email"
	opResend   = "resend_verification"
	opLogout   = "logout"
)

// Store is the single source of truth for the session. It is safe for
// concurrent use.
type Store struct {
	api         domain.AuthAPI
	credentials domain.CredentialStore
	logger      *slog.Logger
	now         func() time.Time

	initialized atomic.Bool

	mu    sync.RWMutex
	state domain.Session

	flightMu sync.Mutex
	inFlight map[string]bool

	obsMu        sync.Mutex
	observers    map[int]func(domain.Transition)
	nextObserver int
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger; the default discards output
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, used for credential expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store in the initializing state. Call Initialize once
// before serving requests.
func New(api domain.AuthAPI, credentials domain.CredentialStore, opts ...Option) *Store {
	s := &Store{
		api:         api,
		credentials: credentials,
		logger:      logger.Discard(),
		now:         time.Now,
		state:       domain.Session{Status: domain.StatusInitializing},
		inFlight:    make(map[string]bool),
		observers:   make(map[int]func(domain.Transition)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Accessors
// ============================================================================

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Status returns the current lifecycle status
func (s *Store) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

// User returns a copy of the signed in user, or nil
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.Clone()
}

// Subscribe registers fn to be called after every change of status or
// user. fn runs outside the store's lock and may read the store. The
// returned func removes the observer.
func (s *Store) Subscribe(fn func(domain.Transition)) func() {
	s.obsMu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// ============================================================================
// Operations
// ============================================================================

// Initialize restores the session from durable storage. It runs once and
// always leaves the store authenticated or anonymous.
func (s *Store) Initialize(ctx context.Context) error {
	if !s.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	credential, err := s.credentials.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrCredentialNotFound) {
		s.logger.WarnContext(ctx, "failed to read stored credential", "error", err)
	}
	if err != nil || credential == "" {
		if ctx.Err() != nil {
			s.abandon(ctx, nil)
			return nil
		}
		s.signOut(ctx, nil)
		s.logger.DebugContext(ctx, "no stored credential, starting anonymous")
		return nil
	}

	if credentialExpired(credential, s.now()) {
		s.logger.InfoContext(ctx, "stored credential expired, clearing", "code", domain.CodeAuthExpired)
		s.signOut(ctx, nil)
		return nil
	}

	s.commit(ctx, mutation{status: domain.StatusInitializing, credential: credential})

	if user := s.fetchCurrentUser(ctx, true); user != nil {
		s.logger.InfoContext(ctx, "session restored", "user_id", user.ID, "username", user.Username)
	}
	return nil
}

// FetchCurrentUser asks the server who the held credential belongs to.
// Any failure signs the session out locally and returns nil. A result
// that arrives after ctx was cancelled, or after the credential changed,
// is discarded.
func (s *Store) FetchCurrentUser(ctx context.Context) *domain.User {
	return s.fetchCurrentUser(ctx, false)
}

func (s *Store) fetchCurrentUser(ctx context.Context, initializing bool) *domain.User {
	snap := s.Snapshot()
	sameCredential := func(cur domain.Session) bool { return cur.Credential == snap.Credential }

	if snap.Credential == "" {
		if snap.Status != domain.StatusAnonymous {
			s.signOut(ctx, sameCredential)
		}
		return nil
	}

	user, err := s.api.CurrentUser(ctx)

	// During startup a cancelled request still has to settle the status
	if !initializing && ctx.Err() != nil {
		s.logger.DebugContext(ctx, "discarding current user result", "error", ctx.Err())
		return nil
	}

	if err != nil && initializing && ctx.Err() != nil {
		s.abandon(ctx, sameCredential)
		return nil
	}

	if err != nil {
		s.logger.WarnContext(ctx, "current user request failed, signing out",
			"code", domain.CodeOf(err),
			"error", err,
		)
		s.signOut(ctx, sameCredential)
		return nil
	}

	applied, _ := s.commit(ctx, mutation{
		status:     domain.StatusAuthenticated,
		user:       user,
		credential: snap.Credential,
		guard:      sameCredential,
	})
	if !applied {
		s.logger.DebugContext(ctx, "credential changed during current user request, discarding")
		return nil
	}
	return user.Clone()
}

// revalidate re-reads the current user for a background check. Only a
// credential the server rejects signs the session out; an outage or a
// server error leaves the session untouched and is returned.
func (s *Store) revalidate(ctx context.Context) (*domain.User, error) {
	snap := s.Snapshot()
	if !snap.Authenticated() {
		return nil, nil
	}
	sameCredential := func(cur domain.Session) bool { return cur.Credential == snap.Credential }

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		if domain.IsAuthError(err) {
			s.logger.InfoContext(ctx, "credential rejected, signing out", "code", domain.CodeOf(err))
			s.signOut(ctx, sameCredential)
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	applied, _ := s.commit(ctx, mutation{
		status:     domain.StatusAuthenticated,
		user:       user,
		credential: snap.Credential,
		guard:      sameCredential,
	})
	if !applied {
		return nil, nil
	}
	return user.Clone(), nil
}

// Login authenticates with the server and adopts the returned session.
// On failure the session is unchanged and the normalised error returned.
func (s *Store) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	release, err := s.begin(opLogin)
	if err != nil {
		return nil, err
	}
	defer release()

	req = validation.NormalizeLogin(req)
	if err := validation.ValidateLogin(req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "logging in", "identifier", req.Identifier)

	resp, err := s.api.Login(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "login failed", "identifier", req.Identifier, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}

	if err := s.adopt(ctx, resp); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "logged in", "user_id", resp.User.ID, "username", resp.User.Username)
	return resp.User.Clone(), nil
}

// Register creates an account. The session is not authenticated by it;
// the account must verify its email first.
func (s *Store) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	release, err := s.begin(opRegister)
	if err != nil {
		return nil, err
	}
	defer release()

	req = validation.NormalizeRegister(req)
	if err := validation.ValidateRegister(req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "registering account", "username", req.Username, "email", req.Email)

	resp, err := s.api.Register(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "registration failed", "username", req.Username, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}
	return resp, nil
}

// VerifyEmail submits the mailed code. An ack carrying a token and user
// signs the session in; an already authenticated session is refreshed so
// the verified flag updates.
func (s *Store) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) (*domain.AuthResponse, error) {
	release, err := s.begin(opVerify)
	if err != nil {
		return nil, err
	}
	defer release()

	req = validation.NormalizeVerify(req)
	if err := validation.ValidateVerifyEmail(req); err != nil {
		return nil, err
	}

	resp, err := s.api.VerifyEmail(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "email verification failed", "email", req.Email, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "email verified", "email", req.Email)

	switch {
	case resp.HasSession():
		if err := s.adopt(ctx, resp); err != nil {
			return nil, err
		}
	case s.Snapshot().Authenticated():
		s.FetchCurrentUser(ctx)
	}
	return resp, nil
}

// ResendVerification asks the server to mail a new code
func (s *Store) ResendVerification(ctx context.Context, req domain.ResendVerificationRequest) (*domain.AuthResponse, error) {
	release, err := s.begin(opResend)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := validation.ValidateResend(req); err != nil {
		return nil, err
	}

	resp, err := s.api.ResendVerification(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "resend verification failed", "email", req.Email, "code", domain.CodeOf(err), "error", err)
		return nil, err
	}
	return resp, nil
}

// Logout ends the session. The server is told when a credential is held,
// but local state is cleared whatever it answers. The only error is
// ErrOperationInProgress when another logout is already running.
func (s *Store) Logout(ctx context.Context) error {
	release, err := s.begin(opLogout)
	if err != nil {
		return err
	}
	defer release()

	if snap := s.Snapshot(); snap.Credential != "" {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.WarnContext(ctx, "remote logout failed, clearing local session", "code", domain.CodeOf(err), "error", err)
		}
	}

	s.signOut(ctx, nil)
	s.logger.InfoContext(ctx, "logged out")
	return nil
}

// expire signs out a credential that is known to be expired, without
// asking the server
func (s *Store) expire(ctx context.Context, credential string) {
	s.logger.InfoContext(ctx, "credential expired, signing out", "code", domain.CodeAuthExpired)
	s.signOut(ctx, func(cur domain.Session) bool { return cur.Credential == credential })
}

// ============================================================================
// State changes
// ============================================================================

// mutation is a complete next state. Anonymous clears storage and
// transport; any other status holds credential.
type mutation struct {
	status     domain.Status
	user       *domain.User
	credential string
	// persist writes credential to durable storage before anything else
	persist bool
	// guard, when set, must accept the current state for the change to apply
	guard func(domain.Session) bool
	// keepStored leaves durable storage alone when going anonymous
	keepStored bool
}

func (s *Store) adopt(ctx context.Context, resp *domain.AuthResponse) error {
	_, err := s.commit(ctx, mutation{
		status:     domain.StatusAuthenticated,
		user:       resp.User,
		credential: resp.Token,
		persist:    true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist credential", "error", err)
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

func (s *Store) signOut(ctx context.Context, guard func(domain.Session) bool) {
	_, _ = s.commit(ctx, mutation{status: domain.StatusAnonymous, guard: guard})
}

// abandon settles a cancelled startup as anonymous in memory. The server
// never judged the stored credential, so it stays for the next run.
func (s *Store) abandon(ctx context.Context, guard func(domain.Session) bool) {
	s.logger.DebugContext(ctx, "startup cancelled, keeping stored credential", "error", ctx.Err())
	_, _ = s.commit(ctx, mutation{status: domain.StatusAnonymous, guard: guard, keepStored: true})
}

// commit is the only writer of the session. Durable storage, the
// transport credential and the in-memory state are updated under one
// write lock, so readers see either the old or the new session.
func (s *Store) commit(ctx context.Context, m mutation) (bool, error) {
	s.mu.Lock()
	prev := s.state.Clone()

	if m.guard != nil && !m.guard(prev) {
		s.mu.Unlock()
		return false, nil
	}

	if m.status == domain.StatusAnonymous {
		// Clearing must happen even when the caller has given up
		if !m.keepStored {
			if err := s.credentials.Clear(context.WithoutCancel(ctx)); err != nil {
				s.logger.ErrorContext(ctx, "failed to clear stored credential", "error", err)
			}
		}
		s.api.DetachCredential()
		s.state = domain.Session{Status: domain.StatusAnonymous}
	} else {
		if m.persist {
			if err := s.credentials.Save(ctx, m.credential); err != nil {
				s.restoreTransport(prev.Credential)
				s.mu.Unlock()
				return false, err
			}
		}
		if m.persist || m.credential != prev.Credential {
			s.api.AttachCredential(m.credential)
		}
		s.state = domain.Session{Status: m.status, User: m.user.Clone(), Credential: m.credential}
	}

	next := s.state.Clone()
	s.mu.Unlock()

	if changed(prev, next) {
		s.notify(domain.Transition{From: prev, To: next})
	}
	return true, nil
}

// restoreTransport puts back the credential held before a failed change.
// In cookie mode the server has already replaced the jar's session cookie.
func (s *Store) restoreTransport(credential string) {
	if credential == "" {
		s.api.DetachCredential()
		return
	}
	s.api.AttachCredential(credential)
}

func (s *Store) notify(t domain.Transition) {
	s.obsMu.Lock()
	fns := make([]func(domain.Transition), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

func changed(prev, next domain.Session) bool {
	if prev.Status != next.Status {
		return true
	}
	if (prev.User == nil) != (next.User == nil) {
		return true
	}
	return prev.User != nil && *prev.User != *next.User
}

// begin marks op as running; the returned func clears it
func (s *Store) begin(op string) (func(), error) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()

	if s.inFlight[op] {
		return nil, &domain.DomainError{
			Code:    domain.CodeOperationInProgress,
			Message: fmt.Sprintf("%s already in progress", op),
		}
	}
	s.inFlight[op] = true

	return func() {
		s.flightMu.Lock()
		delete(s.inFlight, op)
		s.flightMu.Unlock()
	}, nil
}
