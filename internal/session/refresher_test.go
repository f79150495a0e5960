package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilimopesa/internal/credstore"
	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/logger"
)

func TestNewRefresher_InvalidSchedule(t *testing.T) {
	s, _ := newTestStore(t, newFakeAPI())
	_, err := NewRefresher(s, "every so often", logger.Discard())
	assert.Error(t, err)
}

func TestRefresher_StartStop(t *testing.T) {
	s, _ := newTestStore(t, newFakeAPI())
	r, err := NewRefresher(s, "", logger.Discard())
	require.NoError(t, err)

	r.Start()
	r.Stop()
}

func TestRefresher_Refresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("anonymous is left alone", func(t *testing.T) {
		api := newFakeAPI()
		s := New(api, credstore.NewMemoryStore(), WithClock(clock))
		require.NoError(t, s.Initialize(context.Background()))
		r, err := NewRefresher(s, "@every 1m", logger.Discard())
		require.NoError(t, err)

		r.refresh(context.Background())
		assert.Zero(t, api.TotalCalls())
	})

	t.Run("authenticated session is re-read", func(t *testing.T) {
		api := newFakeAPI()
		api.login = loginAs("opaque-token", unverifiedUser())
		api.currentUser = func(context.Context) (*domain.User, error) { return verifiedUser(), nil }
		s := New(api, credstore.NewMemoryStore(), WithClock(clock))
		_, err := s.Login(context.Background(), domain.LoginRequest{Identifier: "juma", Password: "secret123"})
		require.NoError(t, err)
		r, err := NewRefresher(s, "@every 1m", logger.Discard())
		require.NoError(t, err)

		r.refresh(context.Background())

		assert.Equal(t, 1, api.Calls("current_user"))
		assert.True(t, s.User().IsEmailVerified)
	})

	outages := []struct {
		name string
		err  error
	}{
		{"timeout", domain.WrapNetworkUnavailable("/api/user/", context.DeadlineExceeded)},
		{"circuit open", domain.WrapNetworkUnavailable("/api/user/", errors.New("circuit open"))},
		{"server error", domain.WrapServerError(http.StatusBadGateway, "bad gateway", nil)},
	}
	for _, tt := range outages {
		t.Run(tt.name+" keeps the session", func(t *testing.T) {
			api := newFakeAPI()
			api.login = loginAs("opaque-token", verifiedUser())
			api.currentUser = func(context.Context) (*domain.User, error) { return nil, tt.err }
			cs := credstore.NewMemoryStore()
			s := New(api, cs, WithClock(clock))
			_, err := s.Login(context.Background(), domain.LoginRequest{Identifier: "juma", Password: "secret123"})
			require.NoError(t, err)
			r, err := NewRefresher(s, "@every 1m", logger.Discard())
			require.NoError(t, err)

			r.refresh(context.Background())

			assert.Equal(t, 1, api.Calls("current_user"))
			assert.Equal(t, domain.StatusAuthenticated, s.Status())
			assert.Equal(t, "opaque-token", storedCredential(t, cs))
			assert.Equal(t, verifiedUser(), s.User())
			assertConsistent(t, s, api, cs)
		})
	}

	t.Run("rejected credential signs out", func(t *testing.T) {
		api := newFakeAPI()
		api.login = loginAs("opaque-token", verifiedUser())
		api.currentUser = func(context.Context) (*domain.User, error) {
			return nil, &domain.DomainError{Code: domain.CodeAuthExpired, Message: "Invalid token.", Status: http.StatusUnauthorized}
		}
		cs := credstore.NewMemoryStore()
		s := New(api, cs, WithClock(clock))
		_, err := s.Login(context.Background(), domain.LoginRequest{Identifier: "juma", Password: "secret123"})
		require.NoError(t, err)
		r, err := NewRefresher(s, "@every 1m", logger.Discard())
		require.NoError(t, err)

		r.refresh(context.Background())

		assert.Equal(t, domain.StatusAnonymous, s.Status())
		assert.Empty(t, storedCredential(t, cs))
		assertConsistent(t, s, api, cs)
	})

	t.Run("expired jwt signs out without a request", func(t *testing.T) {
		api := newFakeAPI()
		api.login = loginAs(signedJWT(t, now.Add(-time.Second)), verifiedUser())
		cs := credstore.NewMemoryStore()
		s := New(api, cs, WithClock(clock))
		_, err := s.Login(context.Background(), domain.LoginRequest{Identifier: "juma", Password: "secret123"})
		require.NoError(t, err)
		r, err := NewRefresher(s, "@every 1m", logger.Discard())
		require.NoError(t, err)

		r.refresh(context.Background())

		assert.Equal(t, domain.StatusAnonymous, s.Status())
		assert.Zero(t, api.Calls("current_user"))
		assertConsistent(t, s, api, cs)
	})
}

func TestCredentialExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	exp, ok := credentialExpiry(signedJWT(t, now))
	require.True(t, ok)
	assert.Equal(t, now.Unix(), exp.Unix())
	assert.True(t, credentialExpired(signedJWT(t, now), now), "expired at exp")
	assert.False(t, credentialExpired(signedJWT(t, now.Add(time.Minute)), now))

	_, ok = credentialExpiry("9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b")
	assert.False(t, ok, "opaque tokens have no expiry")
	assert.False(t, credentialExpired("sessionid-value", now))
}
