package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilimopesa/internal/domain"
)

// DefaultRefreshSchedule re-checks the session every five minutes
const DefaultRefreshSchedule = "@every 5m"

const refreshTimeout = 30 * time.Second

// Refresher keeps a long running session honest: it re-reads the current
// user on a schedule and expires JWT credentials locally once their exp
// claim has passed. Outages and server errors never end the session; only
// a credential the server rejects does.
type Refresher struct {
	store  *Store
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRefresher schedules refreshes of store. schedule uses cron syntax,
// including descriptors such as "@every 1m".
func NewRefresher(store *Store, schedule string, logger *slog.Logger) (*Refresher, error) {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	r := &Refresher{
		store:  store,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins the schedule in its own goroutine
func (r *Refresher) Start() {
	r.logger.Info("session refresher started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("session refresher stopped")
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	r.refresh(ctx)
}

// refresh performs one check. Anonymous and initializing sessions are
// left alone.
func (r *Refresher) refresh(ctx context.Context) {
	snap := r.store.Snapshot()
	if !snap.Authenticated() {
		return
	}

	if credentialExpired(snap.Credential, r.store.now()) {
		r.store.expire(ctx, snap.Credential)
		return
	}

	user, err := r.store.revalidate(ctx)
	switch {
	case err != nil && domain.IsAuthError(err):
		r.logger.InfoContext(ctx, "session rejected by server", "code", domain.CodeOf(err))
	case err != nil:
		r.logger.WarnContext(ctx, "session check failed, keeping session", "code", domain.CodeOf(err), "error", err)
	case user != nil:
		r.logger.DebugContext(ctx, "session refreshed", "user_id", user.ID, "verified", user.IsEmailVerified)
	}
}
