package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/service"
	"github.com/sail-program/sail-gateway/internal/session"
)

// StartSessionEventWorker registers session event handlers.
func StartSessionEventWorker(sessionEvents *service.SessionEventService) {
	if sessionEvents == nil {
		return
	}
	sessionEvents.RegisterHandlers()
}

// Purger removes expired credentials from durable storage.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically drops idle guard state and expired credentials.
type Janitor struct {
	tracker  *session.Tracker
	purger   Purger
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger
}

// NewJanitor builds a janitor. purger may be nil when the token store
// expires entries by itself.
func NewJanitor(tracker *session.Tracker, purger Purger, interval, maxIdle time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{tracker: tracker, purger: purger, interval: interval, maxIdle: maxIdle, logger: logger}
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context) {
	if j.tracker != nil {
		if n := j.tracker.Sweep(j.maxIdle); n > 0 {
			j.logger.Debug("dropped idle sessions", zap.Int("count", n))
		}
	}
	if j.purger != nil {
		n, err := j.purger.PurgeExpired(ctx)
		if err != nil {
			j.logger.Warn("purge expired credentials", zap.Error(err))
			return
		}
		if n > 0 {
			j.logger.Info("purged expired credentials", zap.Int64("count", n))
		}
	}
}
