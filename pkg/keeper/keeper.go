package keeper

import (
	"context"
	"time"

	"xenvman/pkg/client"

	"github.com/sirupsen/logrus"
)

const (
	// MinInterval is the shortest interval IntervalFor returns
	MinInterval = time.Second

	// FallbackInterval is used when keep_alive cannot be parsed
	FallbackInterval = time.Minute
)

// Target is something that can be kept alive, usually a *client.Env
type Target interface {
	ID() string
	Keepalive(ctx context.Context) error
}

// Keeper sends keepalives to one environment on a fixed interval
type Keeper struct {
	target   Target
	interval time.Duration
	logger   *logrus.Logger
}

// New creates a keeper. A non-positive interval falls back to FallbackInterval.
func New(target Target, interval time.Duration, logger *logrus.Logger) *Keeper {
	if interval <= 0 {
		interval = FallbackInterval
	}

	return &Keeper{
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// IntervalFor returns half of an environment keep_alive duration
func IntervalFor(keepAlive string) time.Duration {
	d, err := time.ParseDuration(keepAlive)
	if err != nil || d <= 0 {
		return FallbackInterval
	}

	interval := d / 2
	if interval < MinInterval {
		interval = MinInterval
	}
	return interval
}

// Interval returns the keepalive interval
func (k *Keeper) Interval() time.Duration {
	return k.interval
}

// Run sends a keepalive right away and then on every tick until ctx is done.
// Failures are logged and retried on the next tick, except for a 404 which
// means the environment is gone and ends the loop with that error.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	failures := 0
	for {
		err := k.target.Keepalive(ctx)
		switch {
		case err == nil:
			if failures > 0 {
				k.logger.WithFields(logrus.Fields{
					"env_id":   k.target.ID(),
					"failures": failures,
				}).Info("Keepalive recovered")
			}
			failures = 0
		case ctx.Err() != nil:
			return nil
		case client.IsNotFound(err):
			k.logger.WithField("env_id", k.target.ID()).Warn("Environment is gone, stopping keepalive")
			return err
		default:
			failures++
			k.logger.WithError(err).WithFields(logrus.Fields{
				"env_id":   k.target.ID(),
				"failures": failures,
			}).Warn("Keepalive failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
