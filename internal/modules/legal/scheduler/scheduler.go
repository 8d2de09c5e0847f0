package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/crawler"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/realtime/bus"
)

const (
	// DefaultSpec fires daily at 17:00 (seconds minutes hours dom month dow).
	DefaultSpec     = "0 0 17 * * *"
	DefaultTimezone = "Africa/Nairobi"

	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

var (
	ErrCrawlInProgress = errors.New("crawl already in progress")
	ErrStopping        = errors.New("crawl scheduler is stopping")
)

type Config struct {
	Enabled    bool
	Spec       string
	Timezone   string
	RunTimeout time.Duration
	LockTTL    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Enabled:    envutil.Bool("SCHEDULER_ENABLED", true),
		Spec:       envutil.String("SCHEDULER_CRON", DefaultSpec),
		Timezone:   envutil.String("SCHEDULER_TIMEZONE", DefaultTimezone),
		RunTimeout: envutil.Duration("CRAWL_RUN_TIMEOUT", time.Minute, 3*time.Hour),
		LockTTL:    envutil.Duration("CRAWL_RUN_LOCK_TTL", time.Minute, 4*time.Hour),
	}
}

type Crawler interface {
	Crawl(ctx context.Context) (crawler.Result, error)
}

type Deps struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	Crawler Crawler
	// Bus and Lock are optional.
	Bus  bus.Bus
	Lock RunLock
	Now  func() time.Time
}

// RunStatus is the outcome of the most recent run.
type RunStatus struct {
	RunID      string          `json:"run_id"`
	Trigger    string          `json:"trigger"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Result     *crawler.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type Scheduler struct {
	log     *logger.Logger
	metrics *observability.Metrics
	crawler Crawler
	bus     bus.Bus
	lock    RunLock
	now     func() time.Time
	cfg     Config
	loc     *time.Location
	sched   cron.Schedule

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun *RunStatus

	// baseCtx parents every background run; Stop cancels it and installs a
	// fresh one once in-flight runs have drained.
	baseCtx    context.Context
	cancelRuns context.CancelFunc
	stopping   bool
	runs       sync.WaitGroup
	inFlight   atomic.Int32
}

func New(deps Deps, cfg Config) (*Scheduler, error) {
	if deps.Crawler == nil {
		return nil, legal.Errorf(legal.KindConfiguration, "scheduler.New", "crawler required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 3 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.RunTimeout + time.Hour
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, legal.NewError(legal.KindConfiguration, "scheduler.New", fmt.Errorf("timezone %q: %w", cfg.Timezone, err))
	}
	sched, err := cron.Parse(cfg.Spec)
	if err != nil {
		return nil, legal.NewError(legal.KindConfiguration, "scheduler.New", fmt.Errorf("cron spec %q: %w", cfg.Spec, err))
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	lock := deps.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:        log.With("service", "CrawlScheduler"),
		metrics:    deps.Metrics,
		crawler:    deps.Crawler,
		bus:        deps.Bus,
		lock:       lock,
		now:        now,
		cfg:        cfg,
		loc:        loc,
		sched:      sched,
		baseCtx:    baseCtx,
		cancelRuns: cancel,
	}, nil
}

// Start arms the daily trigger. Calling it twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.NewWithLocation(s.loc)
	if s.baseCtx.Err() != nil {
		s.baseCtx, s.cancelRuns = context.WithCancel(context.Background())
	}
	if err := c.AddFunc(s.cfg.Spec, func() {
		if _, err := s.run(s.background(), TriggerScheduled); err != nil && !errors.Is(err, ErrCrawlInProgress) && !errors.Is(err, ErrStopping) {
			s.log.Error("Scheduled crawl failed", "error", err)
		}
	}); err != nil {
		return legal.NewError(legal.KindConfiguration, "scheduler.start", err)
	}
	c.Start()
	s.cron = c
	s.log.Info("Crawl scheduler started",
		"spec", s.cfg.Spec,
		"timezone", s.cfg.Timezone,
		"next_run", s.nextLocked(),
	)
	return nil
}

// Stop disarms the trigger, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	cancel := s.cancelRuns
	s.stopping = true
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
	cancel()
	s.runs.Wait()

	s.mu.Lock()
	s.baseCtx, s.cancelRuns = context.WithCancel(context.Background())
	s.stopping = false
	s.mu.Unlock()
	s.log.Info("Crawl scheduler stopped")
}

func (s *Scheduler) background() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// track registers a run with the drain group. It refuses while Stop is
// draining so Add never races Wait.
func (s *Scheduler) track() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil, ErrStopping
	}
	s.runs.Add(1)
	return s.baseCtx, nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) CrawlInProgress() bool { return s.inFlight.Load() > 0 }

// GetNextRunTime is zero while the scheduler is stopped.
func (s *Scheduler) GetNextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Scheduler) nextLocked() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	return s.sched.Next(s.now().In(s.loc))
}

func (s *Scheduler) LastRun() *RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	cp := *s.lastRun
	return &cp
}

// TriggerManualCrawl runs a crawl now and waits for its result.
func (s *Scheduler) TriggerManualCrawl(ctx context.Context) (crawler.Result, error) {
	return s.run(ctx, TriggerManual)
}

// TriggerManualCrawlAsync starts a crawl in the background and returns its
// run id. ErrCrawlInProgress is returned when the lock is held.
func (s *Scheduler) TriggerManualCrawlAsync() (string, error) {
	base, err := s.track()
	if err != nil {
		return "", err
	}
	release, ok, err := s.lock.Acquire(base, s.cfg.LockTTL)
	if err != nil {
		s.runs.Done()
		return "", err
	}
	if !ok {
		s.runs.Done()
		s.publishSkipped(TriggerManual)
		return "", ErrCrawlInProgress
	}
	runID := uuid.NewString()
	s.inFlight.Add(1)
	go func() {
		defer s.runs.Done()
		defer release()
		if _, err := s.execute(base, runID, TriggerManual); err != nil {
			s.log.Error("Manual crawl failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

func (s *Scheduler) run(ctx context.Context, trigger string) (crawler.Result, error) {
	if _, err := s.track(); err != nil {
		return crawler.Result{}, err
	}
	defer s.runs.Done()
	release, ok, err := s.lock.Acquire(ctx, s.cfg.LockTTL)
	if err != nil {
		return crawler.Result{}, err
	}
	if !ok {
		s.log.Warn("Crawl skipped; another run holds the lock", "trigger", trigger)
		s.publishSkipped(trigger)
		return crawler.Result{}, ErrCrawlInProgress
	}
	defer release()
	s.inFlight.Add(1)
	return s.execute(ctx, uuid.NewString(), trigger)
}

// execute expects inFlight to be incremented by the caller.
func (s *Scheduler) execute(ctx context.Context, runID, trigger string) (res crawler.Result, err error) {
	defer s.inFlight.Add(-1)
	ctx = ctxutil.WithRunID(ctx, runID)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	started := s.now()
	s.metrics.CrawlStarted()
	s.publish(bus.Event{Type: bus.EventCrawlStarted, RunID: runID, Trigger: trigger, At: started})
	s.log.Info("Crawl run started", "run_id", runID, "trigger", trigger)

	res, err = s.crawler.Crawl(ctx)

	finished := s.now()
	status := RunStatus{RunID: runID, Trigger: trigger, StartedAt: started, FinishedAt: finished, Result: &res}
	outcome := "ok"
	ev := bus.Event{Type: bus.EventCrawlFinished, RunID: runID, Trigger: trigger, At: finished, Data: map[string]any{
		"discovered": res.Discovered,
		"ingested":   res.Ingested,
		"skipped":    res.Skipped,
		"failed":     res.Failed,
	}}
	if err != nil {
		outcome = "error"
		status.Error = err.Error()
		ev.Type = bus.EventCrawlFailed
		ev.Data["error"] = err.Error()
	}
	s.metrics.CrawlFinished()
	s.metrics.ObserveCrawlRun(trigger, outcome, finished.Sub(started))
	s.publish(ev)

	s.mu.Lock()
	s.lastRun = &status
	s.mu.Unlock()
	return res, err
}

func (s *Scheduler) publishSkipped(trigger string) {
	s.publish(bus.Event{Type: bus.EventCrawlSkipped, Trigger: trigger, At: s.now()})
}

func (s *Scheduler) publish(ev bus.Event) {
	if s.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("Crawl event publish failed", "type", ev.Type, "error", err)
	}
}
