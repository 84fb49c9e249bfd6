package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"vidloader/internal/config"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/files"
	"vidloader/internal/infrastructure"
)

const (
	modeCheck     = "check"
	modeIncrement = "increment"
)

// Counter is the free tier download counter backed by a quota file.
type Counter struct {
	path        string
	lockPath    string
	limit       int
	tagger      *Tagger
	now         func() time.Time
	lockTimeout time.Duration
	metrics     *Metrics
}

// Option configures a Counter
type Option func(*Counter)

// WithClock overrides the clock that decides the current day
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		c.now = now
	}
}

// WithLockTimeout bounds lock acquisition
func WithLockTimeout(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithMetrics attaches quota instruments
func WithMetrics(m *Metrics) Option {
	return func(c *Counter) {
		c.metrics = m
	}
}

// NewCounter creates a counter for path whose tags are keyed by fingerprint.
// The daily limit is config.FreeDailyDownloads.
func NewCounter(path, fingerprint string, opts ...Option) (*Counter, error) {
	tagger, err := NewTagger(fingerprint)
	if err != nil {
		return nil, err
	}

	c := &Counter{
		path:        path,
		lockPath:    path + ".lock",
		limit:       config.FreeDailyDownloads,
		tagger:      tagger,
		now:         time.Now,
		lockTimeout: config.DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Path returns the quota file location
func (c *Counter) Path() string {
	return c.path
}

// Limit returns the daily cap
func (c *Counter) Limit() int {
	return c.limit
}

// Check evaluates today's quota under a shared lock without writing. It
// returns ErrQuotaExceeded or ErrClockRollback kinds when a download would be
// refused.
func (c *Counter) Check(ctx context.Context) (Usage, error) {
	unlock, err := c.lock(ctx, false)
	if err != nil {
		return Usage{}, err
	}
	defer unlock()

	today := Today(c.now())
	rec := c.load(ctx, today)

	usage, err := c.evaluate(rec, today)
	c.metrics.recordDecision(ctx, modeCheck, decisionResult(err))
	return usage, err
}

// Increment counts one download. It runs the full read-verify-increment-write
// sequence under an exclusive lock and refuses when the cap is reached or the
// clock moved backwards.
func (c *Counter) Increment(ctx context.Context) (Usage, error) {
	unlock, err := c.lock(ctx, true)
	if err != nil {
		return Usage{}, err
	}
	defer unlock()

	today := Today(c.now())
	rec := c.load(ctx, today)

	usage, err := c.evaluate(rec, today)
	c.metrics.recordDecision(ctx, modeIncrement, decisionResult(err))
	if err != nil {
		return usage, err
	}

	next := Record{Date: today, Count: usage.Count + 1}
	next.Tag = c.tagger.Tag(next.Date, next.Count)

	if err := c.save(next); err != nil {
		return usage, err
	}
	c.metrics.recordIncrement(ctx)

	usage.Count = next.Count
	c.logger(ctx).DebugContext(ctx, "Download recorded",
		slog.String("date", usage.Date),
		slog.Int("count", usage.Count),
		slog.Int("remaining", usage.Remaining()))

	return usage, nil
}

func (c *Counter) lock(ctx context.Context, exclusive bool) (func(), error) {
	start := time.Now()
	unlock, err := acquireLock(ctx, c.lockPath, exclusive, c.lockTimeout)
	timedOut := errors.Is(err, apperrors.ErrLockTimeout)
	c.metrics.recordLockWait(ctx, time.Since(start), timedOut)

	if timedOut {
		c.logger(ctx).WarnContext(ctx, "Timed out waiting for quota lock",
			slog.String("lock_path", c.lockPath),
			slog.Duration("timeout", c.lockTimeout),
			slog.Bool("exclusive", exclusive))
	}
	return unlock, err
}

// load reads and verifies the quota file. Anything that cannot be trusted
// becomes a fresh record for today.
func (c *Counter) load(ctx context.Context, today string) Record {
	fresh := Record{Date: today}

	data, err := files.ReadLimited(c.path, config.MaxStateFileSize)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fresh
		}
		c.reset(ctx, "unreadable", err)
		return fresh
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.reset(ctx, "corrupt", err)
		return fresh
	}
	if !rec.valid() {
		c.reset(ctx, "corrupt", fmt.Errorf("invalid date %q or count %d", rec.Date, rec.Count))
		return fresh
	}
	if !c.tagger.Verify(rec) {
		c.reset(ctx, "bad_tag", errors.New("integrity tag mismatch"))
		return fresh
	}
	return rec
}

func (c *Counter) reset(ctx context.Context, reason string, cause error) {
	c.metrics.recordTamper(ctx, reason)
	c.logger(ctx).WarnContext(ctx, "Quota file could not be trusted, starting a fresh count for today",
		slog.String("reason", reason),
		slog.String("path", c.path),
		slog.String("error", cause.Error()))
}

// evaluate applies the day comparison and the cap to a verified record
func (c *Counter) evaluate(rec Record, today string) (Usage, error) {
	usage := Usage{Date: today, Count: rec.Count, Limit: c.limit}

	switch {
	case rec.Date < today:
		usage.Count = 0
	case rec.Date > today:
		return usage, apperrors.NewEntitlementError(apperrors.KindClockRollback, "quota",
			fmt.Errorf("%w: last download recorded on %s, today is %s", apperrors.ErrClockRollback, rec.Date, today))
	}

	if usage.Count >= c.limit {
		return usage, apperrors.QuotaExceeded("quota", usage.Count, c.limit)
	}
	return usage, nil
}

func (c *Counter) save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.IOError("save quota", err)
	}
	if err := files.WriteAtomic(c.path, data, 0600); err != nil {
		return apperrors.IOError("save quota", err)
	}
	return nil
}

func (c *Counter) logger(ctx context.Context) *slog.Logger {
	return infrastructure.WithComponent(infrastructure.LoggerWithContext(ctx), "quota")
}

func decisionResult(err error) string {
	if err == nil {
		return "allowed"
	}
	return string(apperrors.KindOf(err))
}
