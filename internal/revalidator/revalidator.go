// Package revalidator periodically re-examines FLAGGED entries in the
// background. Each entry carries its own exponential backoff so a
// persistently suspicious entry consumes less and less work, while a
// global rate limiter keeps the whole loop from competing with
// foreground validation.
package revalidator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DollhouseMCP/contentguard/internal/config"
	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// RevalidateFunc runs one full validation pass for an entry and returns
// the resulting trust level. pipeline.Validate satisfies it.
type RevalidateFunc func(ctx context.Context, entryID string) (trust.Level, error)

// Lister enumerates entry ids at a trust level. *ledger.Ledger satisfies it.
type Lister interface {
	ListByLevel(level trust.Level, limit int) []string
}

type task struct {
	attempts  int
	notBefore time.Time
}

// Revalidator owns the background loop. Create with New, start with
// Start, stop with Stop. Enqueue may be called from any goroutine.
type Revalidator struct {
	revalidate RevalidateFunc
	lister     Lister
	cfg        config.RevalidatorConfig
	limiter    *rate.Limiter
	log        *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task

	cancel context.CancelFunc
	done   chan struct{}

	// now is swapped in tests to step through backoff windows.
	now func() time.Time
}

// New builds a stopped revalidator. Zero config fields fall back to the
// package defaults from config.Default.
func New(fn RevalidateFunc, lister Lister, cfg config.RevalidatorConfig, log *zap.Logger) *Revalidator {
	def := config.Default().Revalidator
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Revalidator{
		revalidate: fn,
		lister:     lister,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:        log,
		tasks:      make(map[string]*task),
		now:        time.Now,
	}
}

// Enqueue registers an entry for background revalidation. The first
// attempt is eligible one backoff-base after enqueueing, so an entry
// flagged moments ago is not immediately rescanned.
func (r *Revalidator) Enqueue(entryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[entryID]; ok {
		return
	}
	r.tasks[entryID] = &task{notBefore: r.now().Add(r.cfg.BackoffBase)}
}

// Start launches the background loop. It returns immediately; the loop
// runs until Stop is called or ctx is cancelled.
func (r *Revalidator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop halts the loop and waits for in-flight work to finish.
func (r *Revalidator) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Revalidator) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle pulls due FLAGGED entries and revalidates up to BatchSize of
// them through a bounded worker pool.
func (r *Revalidator) runCycle(ctx context.Context) {
	due := r.dueEntries()
	if len(due) == 0 {
		return
	}
	r.log.Debug("revalidation cycle", zap.Int("due", len(due)))

	ids := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
				r.revalidateOne(ctx, id)
			}
		}()
	}
	for _, id := range due {
		select {
		case <-ctx.Done():
			close(ids)
			wg.Wait()
			return
		case ids <- id:
		}
	}
	close(ids)
	wg.Wait()
}

// dueEntries reconciles the task map with the ledger's FLAGGED set and
// returns up to BatchSize ids whose backoff window has passed.
func (r *Revalidator) dueEntries() []string {
	flagged := r.lister.ListByLevel(trust.Flagged, -1)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[string]struct{}, len(flagged))
	for _, id := range flagged {
		live[id] = struct{}{}
		if _, ok := r.tasks[id]; !ok {
			// Flagged before this process started, or the hook was
			// missed. Eligible immediately.
			r.tasks[id] = &task{}
		}
	}
	// Entries that left FLAGGED through some other path.
	for id := range r.tasks {
		if _, ok := live[id]; !ok {
			delete(r.tasks, id)
		}
	}

	var due []string
	for id, t := range r.tasks {
		if len(due) >= r.cfg.BatchSize {
			break
		}
		if !t.notBefore.After(now) {
			due = append(due, id)
		}
	}
	return due
}

// revalidateOne runs a single pass and updates the entry's backoff.
// Transient persistence errors are retried briefly in place and then
// left for the next cycle.
func (r *Revalidator) revalidateOne(ctx context.Context, id string) {
	var level trust.Level
	op := func() error {
		var err error
		level, err = r.revalidate(ctx, id)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		r.log.Warn("revalidation failed, will retry next cycle",
			zap.String("entry_id", id), zap.Error(err))
		r.bump(id)
		return
	}

	if level == trust.Flagged {
		r.bump(id)
		return
	}
	// Resolved either way; drop the task.
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
	r.log.Info("flagged entry resolved",
		zap.String("entry_id", id), zap.String("level", string(level)))
}

// bump advances an entry's backoff: notBefore = now + base * 2^attempts,
// capped.
func (r *Revalidator) bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	t.attempts++
	delay := time.Duration(float64(r.cfg.BackoffBase) * math.Pow(2, float64(t.attempts)))
	if delay > r.cfg.BackoffCap || delay <= 0 {
		delay = r.cfg.BackoffCap
	}
	t.notBefore = r.now().Add(delay)
}

// Pending reports how many entries are waiting for revalidation.
func (r *Revalidator) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
