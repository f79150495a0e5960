package guard

import (
	"log/slog"
	"sync"

	"github.com/kilimopesa/internal/domain"
)

// Subscriber is the part of the session store the navigator watches
type Subscriber interface {
	Subscribe(fn func(domain.Transition)) func()
}

// Navigator turns session transitions into navigation, so the session
// store never has to know about pages. It sends the user to the login
// page when a session ends and to the verification page when an
// unverified user signs in on a page that requires verification.
type Navigator struct {
	paths    Paths
	navigate func(path string)
	logger   *slog.Logger

	mu     sync.Mutex
	policy Policy
}

// NewNavigator calls navigate with the destination path
func NewNavigator(paths Paths, navigate func(path string), logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{paths: paths, navigate: navigate, logger: logger, policy: SignedIn}
}

// Watch starts reacting to s; the returned func stops it
func (n *Navigator) Watch(s Subscriber) func() {
	return s.Subscribe(n.observe)
}

// SetPolicy records the policy of the page currently shown
func (n *Navigator) SetPolicy(p Policy) {
	n.mu.Lock()
	n.policy = p
	n.mu.Unlock()
}

func (n *Navigator) observe(t domain.Transition) {
	n.mu.Lock()
	policy := n.policy
	n.mu.Unlock()

	if t.SignedOut() {
		n.redirect(n.paths.Login, "session ended")
		return
	}

	before, after := Decide(t.From, policy), Decide(t.To, policy)
	if after == RedirectToVerification && before != RedirectToVerification {
		n.redirect(n.paths.Verification, "email not verified")
	}
}

func (n *Navigator) redirect(path, reason string) {
	n.logger.Debug("navigating", "path", path, "reason", reason)
	n.navigate(path)
}
