// Package scheduler drives baseline freshness: every registered domain is
// refetched on its own interval even when no realtime update or poll arrives,
// and lifecycle signals (back online, tab visible) trigger an immediate
// refresh of everything.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/pkg/coordinator"
	"github.com/eventualhq/syncengine/pkg/dispatch"
)

// FetchFunc retrieves the current server-side state of a domain as keyed
// values ready for caching.
type FetchFunc func(ctx context.Context, domain string) (map[string]any, error)

// Store is the write surface the scheduler needs from the cache coordinator.
type Store interface {
	Set(ctx context.Context, key string, value any, opts ...coordinator.WriteOption) error
}

// Emitter publishes refresh notifications.
type Emitter interface {
	Emit(eventType string, payload any)
}

// Refresh is the payload emitted with dispatch.EventDomainUpdated after a
// scheduled or signal-triggered fetch lands in the cache.
type Refresh struct {
	Domain      string
	Keys        []string
	RefreshedAt time.Time
}

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type domainJob struct {
	cancel context.CancelFunc
	kick   chan struct{}
}

// Scheduler refreshes registered domains on a per-domain cadence.
type Scheduler struct {
	store   Store
	emitter Emitter
	fetch   FetchFunc
	logger  Logger
	nowFunc func() time.Time

	mu        sync.Mutex
	runCtx    context.Context
	domains   map[string]*domainJob
	intervals map[string]time.Duration
	wg        sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithDomainInterval sets a domain-specific refresh interval.
func WithDomainInterval(domain string, interval time.Duration) Option {
	return func(s *Scheduler) { s.intervals[domain] = interval }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the time source used to stamp refreshes.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.nowFunc = now }
}

// New creates a scheduler writing fetched values through the store and
// announcing refreshes on the emitter.
func New(store Store, emitter Emitter, fetch FetchFunc, opts ...Option) *Scheduler {
	sched := &Scheduler{
		store:     store,
		emitter:   emitter,
		fetch:     fetch,
		logger:    nopLogger{},
		nowFunc:   time.Now,
		domains:   make(map[string]*domainJob),
		intervals: make(map[string]time.Duration),
	}

	for _, opt := range opts {
		opt(sched)
	}

	return sched
}

// Start binds the scheduler to a lifecycle context. Domains added afterwards
// stop refreshing when that context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
}

// AddDomain registers the domain for baseline refresh. Adding a domain twice
// is a no-op.
func (s *Scheduler) AddDomain(domain string) {
	s.mu.Lock()

	if s.runCtx == nil || s.runCtx.Err() != nil {
		s.mu.Unlock()

		return
	}

	if _, ok := s.domains[domain]; ok {
		s.mu.Unlock()

		return
	}

	ctx, cancel := context.WithCancel(s.runCtx)
	job := &domainJob{cancel: cancel, kick: make(chan struct{}, 1)}
	s.domains[domain] = job

	s.mu.Unlock()

	s.wg.Add(1)

	go s.runDomain(ctx, domain, job)
}

// RemoveDomain stops the domain's baseline refresh.
func (s *Scheduler) RemoveDomain(domain string) {
	s.mu.Lock()

	job, ok := s.domains[domain]
	if ok {
		delete(s.domains, domain)
	}

	s.mu.Unlock()

	if ok {
		job.cancel()
	}
}

// Domains returns a snapshot of the registered domains.
func (s *Scheduler) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains := make([]string, 0, len(s.domains))
	for domain := range s.domains {
		domains = append(domains, domain)
	}

	return domains
}

// RefreshAll triggers an immediate out-of-band refresh of every registered
// domain. Connectivity restoration and tab visibility both land here.
func (s *Scheduler) RefreshAll() {
	s.kickMatching("")
}

// RefreshMatching triggers an immediate refresh of every registered domain
// whose name contains the pattern. The coordinator points its post-invalidate
// hook at this method.
func (s *Scheduler) RefreshMatching(pattern string) {
	s.kickMatching(pattern)
}

func (s *Scheduler) kickMatching(pattern string) {
	s.mu.Lock()

	jobs := make([]*domainJob, 0, len(s.domains))

	for domain, job := range s.domains {
		if strings.Contains(domain, pattern) {
			jobs = append(jobs, job)
		}
	}

	s.mu.Unlock()

	for _, job := range jobs {
		select {
		case job.kick <- struct{}{}:
		default:
		}
	}
}

// RefreshDomain fetches the domain immediately and synchronously, outside any
// schedule. The regular cadence is unaffected.
func (s *Scheduler) RefreshDomain(ctx context.Context, domain string) error {
	return s.refresh(ctx, domain)
}

// Wait blocks until every domain job has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) intervalFor(domain string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	interval, ok := s.intervals[domain]
	if !ok {
		interval = constants.DefaultRefreshInterval
	}

	return interval
}

func (s *Scheduler) runDomain(ctx context.Context, domain string, job *domainJob) {
	defer s.wg.Done()

	for {
		timer := time.NewTimer(s.intervalFor(domain))

		select {
		case <-ctx.Done():
			timer.Stop()

			return

		case <-job.kick:
			timer.Stop()

		case <-timer.C:
		}

		err := s.refresh(ctx, domain)
		if err != nil {
			// The next cycle retries; stale data stays served meanwhile.
			s.logger.Printf("scheduler: refreshing %q: %v", domain, err)
		}
	}
}

// refresh fetches the domain, writes every value through the store, and
// announces the refresh.
func (s *Scheduler) refresh(ctx context.Context, domain string) error {
	values, err := s.fetch(ctx, domain)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(values))

	for key, value := range values {
		setErr := s.store.Set(ctx, key, value)
		if setErr != nil {
			s.logger.Printf("scheduler: caching %q: %v", key, setErr)

			continue
		}

		keys = append(keys, key)
	}

	s.emitter.Emit(dispatch.EventDomainUpdated, Refresh{
		Domain:      domain,
		Keys:        keys,
		RefreshedAt: s.nowFunc(),
	})

	return nil
}
