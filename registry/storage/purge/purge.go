// Package purge expires abandoned blob upload sessions.
package purge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkrepo/registry/log"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

const (
	componentKey = "component"

	defaultAge      = 7 * 24 * time.Hour
	defaultInterval = 24 * time.Hour
	maxRetryDelay   = time.Hour
)

// for test purposes (mocking)
var systemClock clock.Clock = clock.New()

// Worker periodically deletes the upload sessions of a blob store that were
// last written longer ago than a configured age.
type Worker struct {
	name     string
	purger   storagedriver.UploadPurger
	logger   log.Logger
	age      time.Duration
	interval time.Duration
	dryRun   bool
}

// Option provides functional options for NewWorker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithAge sets the age past which sessions are purged. Defaults to one week.
func WithAge(d time.Duration) Option {
	return func(w *Worker) {
		w.age = d
	}
}

// WithInterval sets the delay between two passes. Defaults to one day.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithDryRun only reports what would be purged.
func WithDryRun(dryRun bool) Option {
	return func(w *Worker) {
		w.dryRun = dryRun
	}
}

// NewWorker creates a purge worker for p.
func NewWorker(p storagedriver.UploadPurger, opts ...Option) *Worker {
	w := &Worker{name: "registry.storage.purge.Worker", purger: p}
	for _, opt := range opts {
		opt(w)
	}
	w.applyDefaults()
	w.logger = w.logger.WithField(componentKey, w.name)

	return w
}

func (w *Worker) applyDefaults() {
	if w.logger == nil {
		defaultLogger := logrus.New()
		defaultLogger.SetOutput(io.Discard)
		w.logger = log.FromLogrusLogger(defaultLogger)
	}
	if w.age <= 0 {
		w.age = defaultAge
	}
	if w.interval <= 0 {
		w.interval = defaultInterval
	}
}

// Name returns the worker name for observability purposes.
func (w *Worker) Name() string {
	return w.name
}

// Run executes a single purge pass and returns the number of sessions
// removed.
func (w *Worker) Run(ctx context.Context) (n int, err error) {
	ctx = injectCorrelationID(ctx, w.logger)
	l := log.GetLogger(log.WithContext(ctx))

	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			sentry.Flush(5 * time.Second)
			err = fmt.Errorf("purging uploads: panic: %v", r)
			w.logAndReportErr(ctx, err)
		}
	}()

	olderThan := systemClock.Now().Add(-w.age)
	l = l.WithField("older_than", olderThan.UTC().Format(time.RFC3339))

	if w.dryRun {
		l.Info("dry run, skipping upload purge")
		return 0, nil
	}

	start := systemClock.Now()
	n, err = w.purger.PurgeUploads(ctx, olderThan)
	if err != nil {
		err = fmt.Errorf("purging uploads: %w", err)
		w.logAndReportErr(ctx, err)
		return n, err
	}

	l.WithFields(log.Fields{
		"purged_count": n,
		"duration_s":   systemClock.Now().Sub(start).Seconds(),
	}).Info("upload purge finished")

	return n, nil
}

// Start runs purge passes until ctx is done. The first pass happens right
// away. Failed passes are retried with an exponential backoff bounded by the
// interval.
func (w *Worker) Start(ctx context.Context) {
	l := w.logger.WithFields(log.Fields{
		"age":      w.age.String(),
		"interval": w.interval.String(),
		"dry_run":  w.dryRun,
	})
	l.Info("starting upload purge worker")

	b := w.backoff()
	for {
		wait := w.interval
		if _, err := w.Run(ctx); err != nil {
			wait = b.NextBackOff()
			l.WithField("retry_in_s", wait.Seconds()).Warn("upload purge failed, retrying")
		} else {
			b.Reset()
		}

		t := systemClock.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			l.Info("upload purge worker stopped")
			return
		case <-t.C:
		}
	}
}

func (w *Worker) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Minute
	b.RandomizationFactor = 0
	b.MaxInterval = w.interval
	if b.MaxInterval > maxRetryDelay {
		b.MaxInterval = maxRetryDelay
	}
	if b.InitialInterval > b.MaxInterval {
		b.InitialInterval = b.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Clock = systemClock
	b.Reset()
	return b
}

func (w *Worker) logAndReportErr(ctx context.Context, err error) {
	errortracking.Capture(
		err,
		errortracking.WithContext(ctx),
		errortracking.WithField(componentKey, w.name),
	)
	log.GetLogger(log.WithContext(ctx)).WithError(err).Error(err.Error())
}

func injectCorrelationID(ctx context.Context, logger log.Logger) context.Context {
	id := correlation.ExtractFromContextOrGenerate(ctx)

	l := logger.WithFields(log.Fields{correlation.FieldName: id})
	ctx = log.WithLogger(ctx, l)

	return ctx
}
