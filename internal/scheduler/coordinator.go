// Package scheduler owns the triggering and serialization discipline
// around schedule passes: any number of trigger sources funnel into a
// single-worker lane per elder, so generator, marker and notifier never
// run concurrently for the same elder.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/carebell/carebell/internal/models"
	"github.com/carebell/carebell/internal/schedule"
)

// Syncer runs one schedule pass for an elder. It must re-read current
// state itself; the coordinator tells it nothing about what triggered it.
type Syncer interface {
	Sync(ctx context.Context, elderID int64, now time.Time) (*schedule.SyncResult, error)
}

// Alerter consumes a pass's output.
type Alerter interface {
	NotifyMissed(ctx context.Context, elderID int64, missed []*models.ScheduleItem) error
	RemindElder(ctx context.Context, elderID int64, due []*models.ScheduleItem)
}

// ElderSource lists the elders this process serves.
type ElderSource interface {
	ListElderIDs(ctx context.Context) ([]int64, error)
}

// Coordinator fans four trigger sources (periodic tick, store push, user
// action, midnight rollover) into per-elder resync lanes.
type Coordinator struct {
	syncer  Syncer
	alerter Alerter
	elders  ElderSource
	updates <-chan int64 // store push notifications, payload is the elder id
	tick    time.Duration
	loc     *time.Location
	log     zerolog.Logger

	mu    sync.Mutex
	lanes map[int64]chan struct{}
	wg    sync.WaitGroup
}

func New(syncer Syncer, alerter Alerter, elders ElderSource, updates <-chan int64,
	tick time.Duration, loc *time.Location, log zerolog.Logger) *Coordinator {
	if tick <= 0 {
		tick = time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{
		syncer:  syncer,
		alerter: alerter,
		elders:  elders,
		updates: updates,
		tick:    tick,
		loc:     loc,
		log:     log.With().Str("component", "coordinator").Logger(),
		lanes:   make(map[int64]chan struct{}),
	}
}

// Request asks for a resync of one elder. Non-blocking: while a pass is in
// flight one follow-up request is parked and the rest are dropped, because
// the in-flight pass re-reads current state anyway. At least one more pass
// always runs after the last request.
func (c *Coordinator) Request(ctx context.Context, elderID int64) {
	select {
	case c.lane(ctx, elderID) <- struct{}{}:
	default:
		// A pass is running and a follow-up is already queued.
	}
}

// Start runs the trigger sources until ctx is cancelled. Blocks.
func (c *Coordinator) Start(ctx context.Context) {
	rollover := cron.New(cron.WithLocation(c.loc))
	// Midnight rollover: the new day's first pass creates the ScheduleDay
	// and sweeps yesterday's leftovers.
	rollover.AddFunc("0 0 * * *", func() { c.requestAll(ctx) })
	rollover.Start()
	defer rollover.Stop()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.log.Info().Dur("tick", c.tick).Msg("coordinator started")
	c.requestAll(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("coordinator stopping")
			c.wg.Wait()
			return
		case <-ticker.C:
			c.requestAll(ctx)
		case elderID, ok := <-c.updates:
			if !ok {
				c.updates = nil
				continue
			}
			c.Request(ctx, elderID)
		}
	}
}

func (c *Coordinator) requestAll(ctx context.Context) {
	ids, err := c.elders.ListElderIDs(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list elders")
		return
	}
	for _, id := range ids {
		c.Request(ctx, id)
	}
}

// lane returns the elder's request channel, starting its worker on first
// use. Capacity 1 is the whole discipline: one in-flight pass, at most one
// queued behind it.
func (c *Coordinator) lane(ctx context.Context, elderID int64) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.lanes[elderID]; ok {
		return ch
	}
	ch := make(chan struct{}, 1)
	c.lanes[elderID] = ch
	c.wg.Add(1)
	go c.work(ctx, elderID, ch)
	return ch
}

func (c *Coordinator) work(ctx context.Context, elderID int64, requests <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			c.runPass(ctx, elderID)
		}
	}
}

// runPass executes one full pass: generate and repair the day, sweep
// statuses through the marker, then hand the fallout to the alerter.
// Failures degrade to "try again next tick".
func (c *Coordinator) runPass(ctx context.Context, elderID int64) {
	result, err := c.syncer.Sync(ctx, elderID, time.Now().In(c.loc))
	if err != nil {
		c.log.Error().Err(err).Int64("elder", elderID).Msg("schedule pass failed")
		return
	}
	if len(result.NewlyMissed) > 0 {
		if err := c.alerter.NotifyMissed(ctx, elderID, result.NewlyMissed); err != nil {
			c.log.Error().Err(err).Int64("elder", elderID).Msg("missed-dose notification failed")
		}
	}
	if len(result.DueReminders) > 0 {
		c.alerter.RemindElder(ctx, elderID, result.DueReminders)
	}
}
