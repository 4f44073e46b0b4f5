// Package connwatch tracks whether the services a run depends on, the
// record database and the model provider, are reachable.
//
// Each dependency is probed from its own goroutine. While a dependency
// is down it is re-probed with exponential backoff (2s, 4s, ... capped
// at 60s); once up it is polled at a fixed interval. Lookups and model
// calls never wait on a watcher: a down dependency only shows in
// /health and in the logs.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency. It returns nil when the dependency is
// usable and must be safe for concurrent use.
type Probe func(ctx context.Context) error

// Schedule controls how often a dependency is probed.
type Schedule struct {
	// InitialDelay is the first retry delay after a failed probe.
	InitialDelay time.Duration
	// MaxDelay caps the doubling retry delay.
	MaxDelay time.Duration
	// PollInterval is the delay between probes while healthy.
	PollInterval time.Duration
	// ProbeTimeout bounds each probe call.
	ProbeTimeout time.Duration
}

// DefaultSchedule returns the schedule used for the database and the
// model provider.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		PollInterval: 30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.InitialDelay <= 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.MaxDelay < s.InitialDelay {
		s.MaxDelay = s.InitialDelay
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = d.ProbeTimeout
	}
	return s
}

// Dependency describes one watched service.
type Dependency struct {
	Name  string
	Probe Probe
	// Critical dependencies make the instance report itself degraded
	// while they are down.
	Critical bool
	Schedule Schedule
	// OnReady runs in its own goroutine every time the dependency goes
	// from unknown or down to reachable. Optional.
	OnReady func(ctx context.Context)
}

// Status is the observed state of a dependency. Probe error text is
// logged, not reported, since it can carry hostnames and credentials.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Critical  bool      `json:"critical"`
	LastCheck time.Time `json:"last_check,omitzero"`
	// Failures counts consecutive failed probes.
	Failures int `json:"consecutive_failures"`
}

type watcher struct {
	dep    Dependency
	logger *slog.Logger

	mu        sync.Mutex
	checked   bool
	ready     bool
	lastCheck time.Time
	failures  int
}

func (w *watcher) status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Name:      w.dep.Name,
		Ready:     w.ready,
		Critical:  w.dep.Critical,
		LastCheck: w.lastCheck,
		Failures:  w.failures,
	}
}

func (w *watcher) run(ctx context.Context) {
	sched := w.dep.Schedule
	delay := sched.InitialDelay

	for {
		ready := w.check(ctx)

		wait := sched.PollInterval
		if ready {
			delay = sched.InitialDelay
		} else {
			wait = delay
			delay = min(delay*2, sched.MaxDelay)
		}

		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// check probes once, records the result and reports transitions.
func (w *watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.dep.Schedule.ProbeTimeout)
	err := w.dep.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		// Shutting down; a canceled probe says nothing about the service.
		return false
	}

	w.mu.Lock()
	first := !w.checked
	wasReady := w.ready
	w.checked = true
	w.ready = err == nil
	w.lastCheck = time.Now()
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
	}
	failures := w.failures
	w.mu.Unlock()

	log := w.logger.With("dependency", w.dep.Name)
	switch {
	case err == nil && !wasReady:
		if first {
			log.Info("dependency reachable")
		} else {
			log.Info("dependency recovered")
		}
		if w.dep.OnReady != nil {
			go w.dep.OnReady(ctx)
		}
	case err != nil && (first || wasReady):
		log.Warn("dependency unreachable", "critical", w.dep.Critical, "error", err)
	case err != nil:
		log.Debug("dependency still unreachable", "failures", failures, "error", err)
	}
	return err == nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Monitor owns the watchers of one process.
type Monitor struct {
	mu       sync.RWMutex
	watchers map[string]*watcher
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewMonitor creates an empty monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		watchers: make(map[string]*watcher),
		logger:   logger.With("component", "connwatch"),
	}
}

// Watch starts probing dep until ctx is canceled. The first probe runs
// immediately. An empty name, a nil probe or a duplicate name is a
// programming error and panics.
func (m *Monitor) Watch(ctx context.Context, dep Dependency) {
	if dep.Name == "" {
		panic("connwatch: Dependency.Name must not be empty")
	}
	if dep.Probe == nil {
		panic("connwatch: Dependency.Probe must not be nil")
	}
	dep.Schedule = dep.Schedule.withDefaults()

	w := &watcher{dep: dep, logger: m.logger}

	m.mu.Lock()
	if _, dup := m.watchers[dep.Name]; dup {
		m.mu.Unlock()
		panic("connwatch: duplicate dependency " + dep.Name)
	}
	m.watchers[dep.Name] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run(ctx)
	}()
}

// Status returns every dependency's state sorted by name.
func (m *Monitor) Status() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every critical dependency is reachable. A
// dependency that has not been probed yet counts as down.
func (m *Monitor) Healthy() bool {
	for _, s := range m.Status() {
		if s.Critical && !s.Ready {
			return false
		}
	}
	return true
}

// Wait blocks until every watcher has stopped. Cancel the context
// passed to Watch first.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
