package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// Reaper runs ReapStaleMatches on a fixed interval in the background.
type Reaper struct {
	engine *Engine
	log    *slog.Logger
	sched  gocron.Scheduler
}

func NewReaper(engine *Engine, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{engine: engine, log: log}
}

// Start schedules the sweep. Runs never overlap within a process; across
// processes each match is still settled by its own transaction.
func (r *Reaper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("reaper scheduler: %w", err)
	}

	interval := r.engine.Config().ReapInterval
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { r.sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reap stale matches"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("reaper job: %w", err)
	}

	sched.Start()
	r.sched = sched
	r.log.Info("stale match reaper started", "interval", interval, "staleAfter", r.engine.Config().StaleAfter)
	return nil
}

func (r *Reaper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.engine.ReapStaleMatches(ctx)
	if err != nil {
		r.log.Error("stale match sweep", "reaped", n, "err", err)
		return
	}
	if n > 0 {
		r.log.Info("stale match sweep", "reaped", n)
	}
}

func (r *Reaper) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}
