// Package extraction runs price extraction for tracked competitors: at most
// one success per period, bounded retries with exponential backoff, per
// attempt time limits and batched fan-out for periodic runs.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/stealth"
)

// Resolver maps a competitor ID to the product URL being tracked.
type Resolver interface {
	CompetitorURL(ctx context.Context, competitorID string) (string, error)
}

// SuccessLookup answers whether a competitor already has a success since
// the start of the current period. A nil result means no.
type SuccessLookup interface {
	LastSuccess(ctx context.Context, competitorID string, since time.Time) (*models.ExtractionResult, error)
}

// Recorder receives every settled (non-cached) result.
type Recorder interface {
	Record(ctx context.Context, r models.ExtractionResult) error
}

// State of one competitor inside this process.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

type Config struct {
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	SoftTimeout   time.Duration
	HardTimeout   time.Duration
	BatchSize     int
	MaxConcurrent int
	BrowserSlots  int
	Period        time.Duration
	DelayMin      time.Duration
	DelayMax      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		BackoffBase:   60 * time.Second,
		BackoffMax:    240 * time.Second,
		SoftTimeout:   270 * time.Second,
		HardTimeout:   300 * time.Second,
		BatchSize:     50,
		MaxConcurrent: 10,
		BrowserSlots:  3,
		Period:        24 * time.Hour,
		DelayMin:      2 * time.Second,
		DelayMax:      5 * time.Second,
	}
}

// normalized fills zero or invalid fields from DefaultConfig. MaxRetries and
// the delay range may legitimately be zero.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = def.HardTimeout
	}
	if c.SoftTimeout <= 0 || c.SoftTimeout > c.HardTimeout {
		c.SoftTimeout = c.HardTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.BrowserSlots <= 0 {
		c.BrowserSlots = def.BrowserSlots
	}
	if c.Period <= 0 {
		c.Period = def.Period
	}
	if c.DelayMin < 0 {
		c.DelayMin = 0
	}
	if c.DelayMax < 0 {
		c.DelayMax = 0
	}
	return c
}

// Backoff returns the wait before retry n (1-based): base·2^(n-1), capped.
func (c Config) Backoff(n int) time.Duration {
	d := c.BackoffBase
	for i := 1; i < n && d < c.BackoffMax; i++ {
		d *= 2
	}
	return min(d, c.BackoffMax)
}

type Scheduler struct {
	detector *platform.Detector
	resolver Resolver
	lookup   SuccessLookup
	recorder Recorder
	policy   platform.URLPolicy
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time
	sleep    stealth.SleepFunc
	pacer    *stealth.Pacer
	browsers *semaphore.Weighted

	group singleflight.Group

	mu     sync.Mutex
	states map[string]State
}

type Option func(*Scheduler)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for timestamps and period boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the timer used for retry backoff and pacing.
func WithSleep(fn stealth.SleepFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithURLPolicy(p platform.URLPolicy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// New returns a scheduler. lookup may be nil, which disables the
// once-per-period check.
func New(d *platform.Detector, resolver Resolver, lookup SuccessLookup, cfg Config, opts ...Option) *Scheduler {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	s := &Scheduler{
		detector: d,
		resolver: resolver,
		lookup:   lookup,
		cfg:      cfg.normalized(),
		log:      silent,
		now:      time.Now,
		sleep:    stealth.Sleep,
		states:   make(map[string]State),
	}
	for _, o := range opts {
		o(s)
	}

	var delay *stealth.HumanDelay
	if s.cfg.DelayMax > 0 {
		delay = stealth.NewHumanDelayRange(s.cfg.DelayMin, s.cfg.DelayMax)
	}
	s.pacer = stealth.NewPacer(delay, s.sleep)
	s.browsers = semaphore.NewWeighted(int64(s.cfg.BrowserSlots))
	return s
}

func (s *Scheduler) Config() Config { return s.cfg }

// State reports the last known state of competitorID.
func (s *Scheduler) State(competitorID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[competitorID]; ok {
		return st
	}
	return StateIdle
}

func (s *Scheduler) setState(competitorID string, st State) {
	if competitorID == "" {
		return
	}
	s.mu.Lock()
	s.states[competitorID] = st
	s.mu.Unlock()
}

// PeriodStart is the UTC boundary of the period containing t.
func (s *Scheduler) PeriodStart(t time.Time) time.Time {
	return t.UTC().Truncate(s.cfg.Period)
}

// ExtractOne extracts the current price for a tracked competitor. A
// success already recorded in this period is returned with Cached set and
// no network work. Concurrent calls for the same ID share one extraction.
// Only a *platform.ValidationError is returned as an error.
func (s *Scheduler) ExtractOne(ctx context.Context, competitorID string) (models.ExtractionResult, error) {
	competitorID = strings.TrimSpace(competitorID)
	if competitorID == "" {
		return models.ExtractionResult{}, &platform.ValidationError{Field: "competitor_id", Message: "cannot be empty"}
	}

	v, err, _ := s.group.Do(competitorID, func() (any, error) {
		return s.extractTracked(ctx, competitorID)
	})
	if err != nil {
		return models.ExtractionResult{}, err
	}
	return v.(models.ExtractionResult), nil
}

func (s *Scheduler) extractTracked(ctx context.Context, competitorID string) (models.ExtractionResult, error) {
	log := s.log.WithField("competitor_id", competitorID)

	rawURL, err := s.resolver.CompetitorURL(ctx, competitorID)
	if err != nil {
		if platform.IsValidation(err) {
			return models.ExtractionResult{}, err
		}
		log.WithError(err).Error("could not resolve competitor url")
		res := models.NewFailure(competitorID, "", models.PlatformUnknown, fmt.Sprintf("resolve competitor: %v", err), 0, s.now())
		s.finish(ctx, res)
		return res, nil
	}
	if _, err := s.policy.ValidateURL(rawURL); err != nil {
		return models.ExtractionResult{}, err
	}

	if cached, ok := s.cachedSuccess(ctx, competitorID, log); ok {
		return cached, nil
	}

	s.setState(competitorID, StateInProgress)
	res := s.run(ctx, competitorID, strings.TrimSpace(rawURL), log.WithField("url", rawURL))
	s.finish(ctx, res)
	return res, nil
}

func (s *Scheduler) cachedSuccess(ctx context.Context, competitorID string, log logrus.FieldLogger) (models.ExtractionResult, bool) {
	if s.lookup == nil {
		return models.ExtractionResult{}, false
	}
	prev, err := s.lookup.LastSuccess(ctx, competitorID, s.PeriodStart(s.now()))
	if err != nil {
		log.WithError(err).Warn("success lookup failed, extracting anyway")
		return models.ExtractionResult{}, false
	}
	if prev == nil || prev.Status != models.StatusSuccess {
		return models.ExtractionResult{}, false
	}
	log.Debug("already extracted this period")
	s.setState(competitorID, StateSuccess)
	return prev.AsCached(), true
}

// ExtractOnce is the on-demand path: extract rawURL now, without the period
// check and without recording.
func (s *Scheduler) ExtractOnce(ctx context.Context, rawURL string) (models.ExtractionResult, error) {
	if _, err := s.policy.ValidateURL(rawURL); err != nil {
		return models.ExtractionResult{}, err
	}
	rawURL = strings.TrimSpace(rawURL)
	v, _, _ := s.group.Do("url:"+rawURL, func() (any, error) {
		return s.run(ctx, "", rawURL, s.log.WithField("url", rawURL)), nil
	})
	return v.(models.ExtractionResult), nil
}

// ExtractBatch extracts every ID, BatchSize at a time with at most
// MaxConcurrent in flight. Results follow the order of the first occurrence
// of each ID; validation failures become failed results.
func (s *Scheduler) ExtractBatch(ctx context.Context, competitorIDs []string) []models.ExtractionResult {
	ids := uniqueIDs(competitorIDs)
	results := make([]models.ExtractionResult, len(ids))
	batches := (len(ids) + s.cfg.BatchSize - 1) / s.cfg.BatchSize

	for b := 0; b < batches; b++ {
		lo := b * s.cfg.BatchSize
		hi := min(lo+s.cfg.BatchSize, len(ids))
		platform.ReportProgress(ctx, "Batch %d/%d (%d competitors)...", b+1, batches, hi-lo)

		var g errgroup.Group
		g.SetLimit(s.cfg.MaxConcurrent)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				res, err := s.ExtractOne(ctx, ids[i])
				if err != nil {
					res = models.NewFailure(ids[i], "", models.PlatformUnknown, err.Error(), 0, s.now())
					s.setState(ids[i], StateFailed)
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
	}

	sum := Summarize(results)
	s.log.WithFields(logrus.Fields{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
		"cached":    sum.Cached,
	}).Info("batch complete")
	return results
}

func uniqueIDs(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// finish records res and updates the competitor state. Recording outlives
// a cancelled ctx so abandoned attempts still leave a history row.
func (s *Scheduler) finish(ctx context.Context, res models.ExtractionResult) {
	if res.Status == models.StatusSuccess {
		s.setState(res.CompetitorID, StateSuccess)
	} else {
		s.setState(res.CompetitorID, StateFailed)
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
		s.log.WithError(err).WithField("competitor_id", res.CompetitorID).Error("failed to record extraction result")
	}
}

// run drives the retry loop for one URL and always returns a settled result.
func (s *Scheduler) run(ctx context.Context, competitorID, rawURL string, log logrus.FieldLogger) models.ExtractionResult {
	h := s.detector.ForProduct(ctx, rawURL)
	log = log.WithField("platform", h.Platform())

	fail := func(attempts int, err error) models.ExtractionResult {
		log.WithError(err).WithField("attempts", attempts).Error("extraction failed")
		return models.NewFailure(competitorID, rawURL, h.Platform(), err.Error(), attempts, s.now())
	}

	maxAttempts := s.cfg.MaxRetries + 1
	parseFailures := 0
	for attempt := 1; ; attempt++ {
		alog := log.WithField("attempt", attempt)
		amt, err := s.attempt(ctx, h, rawURL, alog)
		if err == nil {
			alog.WithField("price", amt.String()).Info("price extracted")
			return models.NewSuccess(competitorID, rawURL, h.Platform(), amt.Value, amt.Currency, attempt, s.now())
		}
		if ctx.Err() != nil {
			return fail(attempt, abandoned(ctx, nil, err))
		}
		if errors.Is(err, platform.ErrParseFailed) {
			parseFailures++
		}
		if attempt >= maxAttempts || !retryable(err, parseFailures) {
			return fail(attempt, err)
		}

		delay := s.cfg.Backoff(attempt)
		alog.WithError(err).WithField("delay", delay).Warn("attempt failed, retrying")
		if serr := s.sleep(ctx, delay); serr != nil {
			return fail(attempt, abandoned(ctx, serr, err))
		}
	}
}

func abandoned(ctx context.Context, cause, last error) error {
	if c := context.Cause(ctx); c != nil {
		cause = c
	}
	return fmt.Errorf("extraction abandoned: %w: %w (last error: %v)", platform.ErrTimeout, cause, last)
}

// retryable applies the policy: network errors and timeouts retry up to the
// bound, a shape mismatch retries once, bad input and robots.txt refusals
// never.
func retryable(err error, parseFailures int) bool {
	switch {
	case platform.IsValidation(err), errors.Is(err, stealth.ErrBlockedByRobots):
		return false
	case errors.Is(err, platform.ErrTimeout), errors.Is(err, platform.ErrFetchFailed):
		return true
	case errors.Is(err, platform.ErrParseFailed):
		return parseFailures <= 1
	}
	return false
}

// attempt runs one extraction under the hard time limit. Passing the soft
// limit only logs.
func (s *Scheduler) attempt(ctx context.Context, h platform.Handler, rawURL string, log logrus.FieldLogger) (pricing.Amount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()

	if s.cfg.SoftTimeout < s.cfg.HardTimeout {
		soft := time.AfterFunc(s.cfg.SoftTimeout, func() {
			log.WithField("soft_limit", s.cfg.SoftTimeout).Warn("extraction past soft time limit")
		})
		defer soft.Stop()
	}

	// Renders inside the handler share the scheduler's browser slots.
	// Handlers that always render hold one for the whole attempt.
	ctx = platform.WithBrowserSlots(ctx, s.browsers)
	if platform.NeedsBrowser(h) {
		held, release, err := platform.AcquireBrowserSlot(ctx)
		if err != nil {
			return pricing.Amount{}, fmt.Errorf("%w: waiting for browser slot: %w", platform.ErrTimeout, err)
		}
		defer release()
		ctx = held
	}
	if err := s.pacer.Wait(ctx, string(h.Platform())); err != nil {
		return pricing.Amount{}, fmt.Errorf("%w: pacing: %w", platform.ErrTimeout, err)
	}

	type outcome struct {
		amt pricing.Amount
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: extractor panic: %v", platform.ErrParseFailed, r)}
			}
		}()
		amt, err := h.ExtractPrice(ctx, rawURL)
		ch <- outcome{amt: amt, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return pricing.Amount{}, classify(o.err)
		}
		if !o.amt.Value.IsPositive() {
			return pricing.Amount{}, platform.ParseError("extract price", errors.New("no positive price found"))
		}
		return o.amt, nil
	case <-ctx.Done():
		return pricing.Amount{}, fmt.Errorf("%w: attempt exceeded %s: %w", platform.ErrTimeout, s.cfg.HardTimeout, ctx.Err())
	}
}

func classify(err error) error {
	var pe *pricing.ParseError
	if errors.As(err, &pe) && !errors.Is(err, platform.ErrParseFailed) {
		return platform.ParseError("extract price", err)
	}
	return platform.Classify(err)
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cached    int `json:"cached"`
}

func Summarize(results []models.ExtractionResult) Summary {
	sum := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Status == models.StatusSuccess && r.Cached:
			sum.Succeeded++
			sum.Cached++
		case r.Status == models.StatusSuccess:
			sum.Succeeded++
		default:
			sum.Failed++
		}
	}
	return sum
}
