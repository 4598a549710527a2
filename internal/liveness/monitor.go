package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type sessionSweeper interface {
	SweepStaleWaiting(ctx context.Context, olderThan time.Time) ([]string, error)
}

type gateway interface {
	DisconnectStale(timeout time.Duration) int
}

// Monitor runs the two reclamation sweeps: abandoned WAITING lobbies and
// dead connections. Sweep failures are logged and retried on the next tick,
// never fatal.
type Monitor struct {
	logger  *slog.Logger
	game    sessionSweeper
	gateway gateway

	scheduler gocron.Scheduler

	idleThreshold    time.Duration
	idleSweepEvery   time.Duration
	heartbeatTimeout time.Duration
	heartbeatEvery   time.Duration
}

func New(logger *slog.Logger, game sessionSweeper, gw gateway, idleThreshold, heartbeatTimeout time.Duration) (*Monitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Monitor{
		logger:           logger.With("component", "liveness"),
		game:             game,
		gateway:          gw,
		scheduler:        scheduler,
		idleThreshold:    idleThreshold,
		idleSweepEvery:   5 * time.Minute,
		heartbeatTimeout: heartbeatTimeout,
		heartbeatEvery:   time.Minute,
	}, nil
}

func (that *Monitor) Start(ctx context.Context) error {
	_, err := that.scheduler.NewJob(
		gocron.DurationJob(that.idleSweepEvery),
		gocron.NewTask(func() {
			that.sweepIdleWaiting(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}

	_, err = that.scheduler.NewJob(
		gocron.DurationJob(that.heartbeatEvery),
		gocron.NewTask(func() {
			that.sweepHeartbeats()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule heartbeat sweep: %w", err)
	}

	that.scheduler.Start()
	that.logger.Info("liveness sweeps started",
		"idleThreshold", that.idleThreshold, "heartbeatTimeout", that.heartbeatTimeout)

	return nil
}

func (that *Monitor) Stop() error {
	if err := that.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	return nil
}

func (that *Monitor) sweepIdleWaiting(ctx context.Context) {
	log := that.logger.With("method", "sweepIdleWaiting")

	codes, err := that.game.SweepStaleWaiting(ctx, time.Now().UTC().Add(-that.idleThreshold))
	if err != nil {
		log.Error("failed to sweep stale sessions", "error", err)
		return
	}

	if len(codes) > 0 {
		log.Info("reclaimed abandoned lobbies", "count", len(codes), "codes", codes)
	}
}

func (that *Monitor) sweepHeartbeats() {
	log := that.logger.With("method", "sweepHeartbeats")

	if closed := that.gateway.DisconnectStale(that.heartbeatTimeout); closed > 0 {
		log.Info("closed stale connections", "count", closed)
	}
}
