package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// reapBatchSize caps how many sessions one sweep fails.
const reapBatchSize = 100

// reapConcurrency bounds parallel FailSession calls within a sweep.
const reapConcurrency = 8

// Reaper periodically fails sessions no platform has synced within the
// timeout. Abandonment is inferred from updated_at, so any sync, incident,
// or resume resets the clock.
type Reaper struct {
	coordinator *Coordinator
	timeout     time.Duration
	cron        *cron.Cron
	logger      *slog.Logger
}

// NewReaper creates a Reaper sweeping on the given cron schedule spec
// (e.g. "@every 1m").
func NewReaper(coordinator *Coordinator, timeout time.Duration, schedule string, logger *slog.Logger) (*Reaper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		coordinator: coordinator,
		timeout:     timeout,
		cron:        cron.New(),
		logger:      logger,
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Sweep(ctx); err != nil {
			r.logger.Error("reaper sweep failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the sweep schedule.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep fails every session whose last update predates the timeout.
// One sweep handles at most reapBatchSize sessions; the next tick picks up
// the remainder.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.timeout)
	ids, err := r.coordinator.store.ListStaleSessions(ctx, cutoff, reapBatchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reapConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			release := r.coordinator.locks.acquire(id.String())
			defer release()

			if err := r.coordinator.store.FailSession(ctx, id); err != nil {
				// A session completed between the listing and the update is
				// not an error; everything else is.
				r.logger.Warn("failed to reap session", "session_id", id, "error", err)
				return nil
			}
			r.logger.Info("reaped abandoned session", "session_id", id, "cutoff", cutoff)
			r.coordinator.broadcast(ctx, sessionEvent{SessionID: id, Status: "failed", Event: "reaped"})
			return nil
		})
	}
	return g.Wait()
}
