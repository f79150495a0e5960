package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/logger"
)

// fakeSubscriber replays transitions to its observers
type fakeSubscriber struct {
	observers []func(domain.Transition)
	stopped   int
}

func (f *fakeSubscriber) Subscribe(fn func(domain.Transition)) func() {
	f.observers = append(f.observers, fn)
	return func() { f.stopped++ }
}

func (f *fakeSubscriber) emit(from, to domain.Session) {
	for _, fn := range f.observers {
		fn(domain.Transition{From: from, To: to})
	}
}

func TestNavigator(t *testing.T) {
	verified := &domain.User{ID: 1, IsEmailVerified: true}
	unverified := &domain.User{ID: 1}

	initializing := domain.Session{Status: domain.StatusInitializing}
	anonymous := domain.Session{Status: domain.StatusAnonymous}
	signedInVerified := domain.Session{Status: domain.StatusAuthenticated, User: verified}
	signedInUnverified := domain.Session{Status: domain.StatusAuthenticated, User: unverified}

	tests := []struct {
		name     string
		policy   Policy
		from, to domain.Session
		want     []string
	}{
		{"startup anonymous stays put", Verified, initializing, anonymous, nil},
		{"startup restored", Verified, initializing, signedInVerified, nil},
		{"logout", SignedIn, signedInVerified, anonymous, []string{"/login"}},
		{"forced logout on verified page", Verified, signedInUnverified, anonymous, []string{"/login"}},
		{"unverified sign in on verified page", Verified, anonymous, signedInUnverified, []string{"/verify-email"}},
		{"unverified sign in on signed in page", SignedIn, anonymous, signedInUnverified, nil},
		{"verification completes", Verified, signedInUnverified, signedInVerified, nil},
		{"unverified restore on verified page", Verified, initializing, signedInUnverified, []string{"/verify-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []string
			nav := NewNavigator(DefaultPaths, func(path string) { visited = append(visited, path) }, logger.Discard())
			nav.SetPolicy(tt.policy)

			sub := &fakeSubscriber{}
			stop := nav.Watch(sub)
			sub.emit(tt.from, tt.to)
			stop()

			assert.Equal(t, tt.want, visited)
			assert.Equal(t, 1, sub.stopped)
		})
	}
}
