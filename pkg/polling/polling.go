// Package polling implements the degraded-mode delivery path: per-domain
// timed HTTP polling used when the realtime transport is unavailable or has
// exhausted its retry budget. Items obtained by polling are delivered through
// the same update path as realtime messages, so consumers cannot tell the two
// apart.
package polling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/hyp3rd/ewrap"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/pkg/stats"
	"github.com/eventualhq/syncengine/pkg/transport"
)

// clientIDHeader carries the caller identity on every poll request.
const clientIDHeader = "X-Client-Id"

// Response is the poll endpoint contract: the changed items since the cursor
// plus the response time, which becomes the new cursor.
type Response struct {
	Items      json.RawMessage `json:"items"`
	ServerTime time.Time       `json:"serverTime"`
}

// CursorStore persists per-domain poll cursors across restarts so polling
// resumes incrementally rather than refetching everything.
type CursorStore interface {
	// Load returns the cursor for the domain, or the zero time if absent.
	Load(ctx context.Context, domain string) (time.Time, error)
	// Save persists the cursor for the domain.
	Save(ctx context.Context, domain string, cursor time.Time) error
}

// memoryCursors is the fallback cursor store when no durable one is attached.
type memoryCursors struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: make(map[string]time.Time)}
}

func (m *memoryCursors) Load(_ context.Context, domain string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cursors[domain], nil
}

func (m *memoryCursors) Save(_ context.Context, domain string, cursor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursors[domain] = cursor

	return nil
}

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Fingerprint derives a stable, opaque client identity token from the given
// seed, sent as request metadata on every poll.
func Fingerprint(seed string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(seed))
}

type domainPoller struct {
	cancel context.CancelFunc
	kick   chan struct{}
}

// Fallback polls each active domain on its own interval. The interval doubles
// while the page is hidden and snaps back to baseline when visibility is
// restored, with an immediate poll fired on that transition to cut staleness.
type Fallback struct {
	baseURL  string
	client   *http.Client
	clientID string
	cursors  CursorStore
	deliver  func(transport.UpdatePayload)
	recorder stats.Recorder
	logger   Logger

	mu        sync.Mutex
	runCtx    context.Context
	domains   map[string]*domainPoller
	intervals map[string]time.Duration
	hidden    bool
	wg        sync.WaitGroup
}

// Option configures the Fallback.
type Option func(*Fallback)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fallback) { f.client = client }
}

// WithCursorStore sets the cursor persistence backend. Defaults to an
// in-memory store that does not survive restarts.
func WithCursorStore(cursors CursorStore) Option {
	return func(f *Fallback) { f.cursors = cursors }
}

// WithClientID sets the identity token carried on every poll request.
func WithClientID(id string) Option {
	return func(f *Fallback) { f.clientID = id }
}

// WithDomainInterval sets a domain-specific poll interval. Time-sensitive
// domains poll more frequently than the default.
func WithDomainInterval(domain string, interval time.Duration) Option {
	return func(f *Fallback) { f.intervals[domain] = interval }
}

// WithRecorder sets the stats recorder.
func WithRecorder(recorder stats.Recorder) Option {
	return func(f *Fallback) { f.recorder = recorder }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(f *Fallback) { f.logger = logger }
}

// NewFallback creates a polling fallback delivering updates through the given
// function, which the engine points at the same dispatch path the realtime
// transport uses.
func NewFallback(baseURL string, deliver func(transport.UpdatePayload), opts ...Option) *Fallback {
	fb := &Fallback{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		deliver:   deliver,
		logger:    nopLogger{},
		domains:   make(map[string]*domainPoller),
		intervals: make(map[string]time.Duration),
	}

	for _, opt := range opts {
		opt(fb)
	}

	if fb.cursors == nil {
		fb.cursors = newMemoryCursors()
	}

	if fb.recorder == nil {
		fb.recorder = stats.NewCollector()
	}

	return fb
}

// Start binds the fallback to a lifecycle context. Domains started afterwards
// stop when that context is canceled.
func (f *Fallback) Start(ctx context.Context) {
	f.mu.Lock()
	f.runCtx = ctx
	f.mu.Unlock()
}

// StartDomain begins polling the domain. Starting an already-polled domain is
// a no-op.
func (f *Fallback) StartDomain(domain string) {
	f.mu.Lock()

	if f.runCtx == nil || f.runCtx.Err() != nil {
		f.mu.Unlock()

		return
	}

	if _, ok := f.domains[domain]; ok {
		f.mu.Unlock()

		return
	}

	ctx, cancel := context.WithCancel(f.runCtx)
	poller := &domainPoller{cancel: cancel, kick: make(chan struct{}, 1)}
	f.domains[domain] = poller

	f.mu.Unlock()

	f.wg.Add(1)

	go f.runDomain(ctx, domain, poller)
}

// StopDomain cancels the domain's interval immediately. No further requests
// are scheduled; a request already in flight completes and its result is
// discarded.
func (f *Fallback) StopDomain(domain string) {
	f.mu.Lock()

	poller, ok := f.domains[domain]
	if ok {
		delete(f.domains, domain)
	}

	f.mu.Unlock()

	if ok {
		poller.cancel()
	}
}

// StartDomains starts polling every listed domain. The transport manager's
// degraded handoff uses this with the currently subscribed channels.
func (f *Fallback) StartDomains(domains []string) {
	for _, domain := range domains {
		f.StartDomain(domain)
	}
}

// StopAll stops polling every domain.
func (f *Fallback) StopAll() {
	f.mu.Lock()

	pollers := make([]*domainPoller, 0, len(f.domains))
	for domain, poller := range f.domains {
		pollers = append(pollers, poller)
		delete(f.domains, domain)
	}

	f.mu.Unlock()

	for _, poller := range pollers {
		poller.cancel()
	}
}

// Wait blocks until every domain poller has exited.
func (f *Fallback) Wait() {
	f.wg.Wait()
}

// Active reports whether the domain is currently polled.
func (f *Fallback) Active(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.domains[domain]

	return ok
}

// SetVisibility adjusts the poll cadence for page visibility. Hiding doubles
// every interval; restoring visibility snaps intervals back and fires an
// immediate poll on every active domain.
func (f *Fallback) SetVisibility(visible bool) {
	f.mu.Lock()

	wasHidden := f.hidden
	f.hidden = !visible
	pollers := make([]*domainPoller, 0, len(f.domains))

	if visible && wasHidden {
		for _, poller := range f.domains {
			pollers = append(pollers, poller)
		}
	}

	f.mu.Unlock()

	for _, poller := range pollers {
		select {
		case poller.kick <- struct{}{}:
		default:
		}
	}
}

// intervalFor returns the effective interval for the domain under the current
// visibility state.
func (f *Fallback) intervalFor(domain string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	interval, ok := f.intervals[domain]
	if !ok {
		interval = constants.DefaultPollInterval
	}

	if f.hidden {
		interval *= constants.HiddenPollFactor
	}

	return interval
}

func (f *Fallback) runDomain(ctx context.Context, domain string, poller *domainPoller) {
	defer f.wg.Done()

	cursor, err := f.cursors.Load(ctx, domain)
	if err != nil {
		f.logger.Printf("polling: no cursor for %q, full refetch: %v", domain, err)
	}

	for {
		timer := time.NewTimer(f.intervalFor(domain))

		select {
		case <-ctx.Done():
			timer.Stop()

			return

		case <-poller.kick:
			timer.Stop()

		case <-timer.C:
		}

		next, pollErr := f.pollOnce(ctx, domain, cursor)
		if pollErr != nil {
			// Transient by definition: the next cycle retries.
			f.logger.Printf("polling: %q: %v", domain, pollErr)

			continue
		}

		cursor = next
	}
}

// pollOnce fetches the changes since the cursor and delivers them. The
// response time becomes the new cursor. A result arriving after the domain
// was stopped is discarded.
func (f *Fallback) pollOnce(ctx context.Context, domain string, cursor time.Time) (time.Time, error) {
	reqURL, err := f.requestURL(domain, cursor)
	if err != nil {
		return cursor, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return cursor, ewrap.Wrap(err, "new poll request")
	}

	if f.clientID != "" {
		req.Header.Set(clientIDHeader, f.clientID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return cursor, ewrap.Wrap(err, "do poll request")
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return cursor, ewrap.Newf("poll status %d for domain %q", resp.StatusCode, domain)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cursor, ewrap.Wrap(err, "read poll response")
	}

	var payload Response

	err = json.Unmarshal(body, &payload)
	if err != nil {
		return cursor, ewrap.Wrap(err, "decode poll response")
	}

	if ctx.Err() != nil {
		// The domain was stopped while the request was in flight.
		return cursor, ewrap.Wrap(ctx.Err(), "domain stopped")
	}

	f.deliver(transport.UpdatePayload{
		Domain:    domain,
		Items:     payload.Items,
		UpdatedAt: payload.ServerTime,
	})

	f.recorder.PollCycle()

	saveErr := f.cursors.Save(ctx, domain, payload.ServerTime)
	if saveErr != nil {
		f.logger.Printf("polling: saving cursor for %q: %v", domain, saveErr)
	}

	return payload.ServerTime, nil
}

func (f *Fallback) requestURL(domain string, cursor time.Time) (string, error) {
	parsed, err := url.Parse(f.baseURL)
	if err != nil {
		return "", ewrap.Wrap(err, "parse poll base url")
	}

	parsed = parsed.JoinPath(domain)

	query := parsed.Query()
	if !cursor.IsZero() {
		query.Set("since", cursor.UTC().Format(time.RFC3339Nano))
	}

	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
