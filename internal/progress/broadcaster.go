package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/airdrop"
	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// DefaultCheckpointSchedule is the cron spec of the progress checkpoint job.
const DefaultCheckpointSchedule = "@every 50s"

// Publisher pushes the counter to every live subscriber.
type Publisher interface {
	BroadcastProgress(value int)
}

// Cycle runs one distribution cycle.
type Cycle interface {
	RunCycle(ctx context.Context) (airdrop.CycleReport, error)
}

// CheckpointStore persists the counter.
type CheckpointStore interface {
	SaveProgress(ctx context.Context, c domain.ProgressCheckpoint) error
	LoadProgress(ctx context.Context) (domain.ProgressCheckpoint, error)
}

// Broadcaster drives the shared counter once per tick, fires a distribution
// cycle when it wraps, and checkpoints it on a cron schedule.
type Broadcaster struct {
	counter  *Counter
	cycle    Cycle
	pub      Publisher
	store    CheckpointStore
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
	cron     *cron.Cron

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // closed when inflight drops to zero
}

// NewBroadcaster creates a Broadcaster ticking every interval.
func NewBroadcaster(counter *Counter, cycle Cycle, pub Publisher, store CheckpointStore, log *zap.Logger, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		counter:  counter,
		cycle:    cycle,
		pub:      pub,
		store:    store,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the tick loop until ctx is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopping", zap.Int("progress", b.counter.Snapshot()))
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick advances the counter, or fires a cycle and resets it when saturated,
// then broadcasts the new value.
func (b *Broadcaster) Tick(ctx context.Context) {
	if _, saturated := b.counter.Advance(); saturated {
		b.dispatch(ctx)
		b.counter.Reset()
	}
	b.pub.BroadcastProgress(b.counter.Snapshot())
}

// dispatch launches a distribution cycle without waiting for it.
// In-flight cycles are not canceled with ctx.
func (b *Broadcaster) dispatch(ctx context.Context) {
	cycleCtx := context.WithoutCancel(ctx)
	b.begin()
	go func() {
		defer b.end()
		b.log.Info("distribution cycle triggered")
		report, err := b.cycle.RunCycle(cycleCtx)
		if err != nil {
			b.log.Error("distribution cycle finished with errors",
				zap.Int("failed", report.Failed),
				zap.Int("users", report.Users),
				zap.Error(err),
			)
		}
	}()
}

func (b *Broadcaster) begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight == 0 {
		b.idle = make(chan struct{})
	}
	b.inflight++
}

func (b *Broadcaster) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.inflight == 0 {
		close(b.idle)
	}
}

// Wait blocks until in-flight cycles finish or ctx is done.
// Giving up on ctx leaves nothing behind; the cycles keep running.
func (b *Broadcaster) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.inflight == 0 {
		b.mu.Unlock()
		return nil
	}
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Checkpoint persists the current value. Failures are logged only.
func (b *Broadcaster) Checkpoint(ctx context.Context) {
	cp := domain.ProgressCheckpoint{Progress: b.counter.Snapshot(), LastUpdatedAt: b.now().UTC()}
	if err := b.store.SaveProgress(ctx, cp); err != nil {
		b.log.Error("progress checkpoint failed", zap.Int("progress", cp.Progress), zap.Error(err))
		return
	}
	b.log.Debug("progress checkpoint saved", zap.Int("progress", cp.Progress))
}

// Resume restores the counter from the last checkpoint, if any.
func (b *Broadcaster) Resume(ctx context.Context) error {
	cp, err := b.store.LoadProgress(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	v := b.counter.Restore(cp.Progress)
	b.log.Info("progress restored", zap.Int("progress", v), zap.Time("checkpoint_at", cp.LastUpdatedAt))
	return nil
}

// StartCheckpoints schedules Checkpoint with the given cron spec.
func (b *Broadcaster) StartCheckpoints(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultCheckpointSchedule
	}
	logger := cronLogger{log: b.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() { b.Checkpoint(ctx) }); err != nil {
		return err
	}
	b.cron = c
	c.Start()
	b.log.Info("scheduled progress checkpoint job", zap.String("schedule", spec))
	return nil
}

// StopCheckpoints stops the checkpoint job and waits for a running one.
func (b *Broadcaster) StopCheckpoints() {
	if b.cron == nil {
		return
	}
	<-b.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
