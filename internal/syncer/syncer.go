// Package syncer makes a destination object-store prefix converge to a
// source prefix: list both sides, copy what is missing or changed under
// bounded concurrency, then re-list to verify convergence.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/objsync/objsync/internal/store"
)

// Location identifies a scope of objects: a store handle, a bucket and a
// key prefix. Treated as immutable for the duration of one sync run;
// change prefixes only via SetPrefix between runs.
type Location struct {
	Store  store.ObjectStore
	Bucket string
	Prefix string
}

// SetPrefix updates the location's prefix. Must not be called while a
// sync run is in flight; the caller owns exclusion.
func (l *Location) SetPrefix(prefix string) {
	l.Prefix = prefix
}

func (l *Location) String() string {
	return l.Bucket + "/" + l.Prefix
}

// Config is one synchronizer setup. Reusable across repeated StartSyncing
// calls.
type Config struct {
	Source      Location
	Destination Location

	// MaxConcurrency bounds simultaneous in-flight copies. Zero means
	// DefaultMaxConcurrency.
	MaxConcurrency int

	// MaxRetries bounds attempts per object copy. Zero means
	// DefaultMaxRetries.
	MaxRetries int

	// ForceStream disables server-side copies even when source and
	// destination share a store handle.
	ForceStream bool
}

const (
	DefaultMaxConcurrency = 15
	DefaultMaxRetries     = 5
)

var (
	ErrNoSourceStore      = errors.New("syncer: source store not configured")
	ErrNoDestinationStore = errors.New("syncer: destination store not configured")
	ErrNoBucket           = errors.New("syncer: bucket not configured")
)

// Validate fails fast on missing required fields, before any I/O.
func (c *Config) Validate() error {
	if c.Source.Store == nil {
		return ErrNoSourceStore
	}
	if c.Destination.Store == nil {
		return ErrNoDestinationStore
	}
	if c.Source.Bucket == "" || c.Destination.Bucket == "" {
		return ErrNoBucket
	}
	return nil
}

func (c *Config) maxConcurrency() int {
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return DefaultMaxConcurrency
}

func (c *Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

// Report summarizes one sync run.
type Report struct {
	Source      string
	Destination string
	NeedsCopy   int
	Conflicting int
	Unchanged   int
	Copied      int
	Failed      int
	Converged   bool
	Duration    time.Duration
}

// Syncer drives convergence of one destination location to one source
// location.
type Syncer struct {
	cfg    Config
	copier *copier
	log    *slog.Logger
}

// New validates cfg and builds a Syncer. The logger may be nil, in which
// case slog.Default() is used.
func New(cfg Config, logger *slog.Logger) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		cfg: cfg,
		copier: &copier{
			source:      cfg.Source,
			destination: cfg.Destination,
			maxRetries:  cfg.maxRetries(),
			express:     !cfg.ForceStream && cfg.Source.Store == cfg.Destination.Store,
			log:         logger,
		},
		log: logger,
	}, nil
}

// SetPrefixes updates both prefixes between runs.
func (s *Syncer) SetPrefixes(source, destination string) {
	s.cfg.Source.SetPrefix(source)
	s.cfg.Destination.SetPrefix(destination)
	s.copier.source.SetPrefix(source)
	s.copier.destination.SetPrefix(destination)
}

// StartSyncing runs one full convergence cycle. It returns true when the
// destination matches the source afterwards. Listing and configuration
// failures surface as errors; individual copy failures do not. Those are
// retried, then swallowed, and show up as a false result when the verify
// pass still finds pending keys.
func (s *Syncer) StartSyncing(ctx context.Context) (bool, error) {
	report, err := s.Sync(ctx)
	if err != nil {
		return false, err
	}
	return report.Converged, nil
}

// Sync is StartSyncing with the full run report.
func (s *Syncer) Sync(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Source:      s.cfg.Source.String(),
		Destination: s.cfg.Destination.String(),
	}

	diff, err := s.Compare(ctx)
	if err != nil {
		return nil, err
	}
	report.NeedsCopy = len(diff.NeedsCopy)
	report.Conflicting = len(diff.Conflicting)
	report.Unchanged = len(diff.Unchanged)

	if diff.Converged() {
		report.Converged = true
		report.Duration = time.Since(start)
		return report, nil
	}

	copied, failed := s.copyAll(ctx, diff.Pending())
	report.Copied = copied
	report.Failed = failed

	verify, err := s.Compare(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	report.Converged = verify.Converged()
	report.Duration = time.Since(start)

	s.log.Debug("sync finished",
		"source", report.Source,
		"destination", report.Destination,
		"copied", report.Copied,
		"failed", report.Failed,
		"converged", report.Converged,
	)
	return report, nil
}

// Compare lists both locations concurrently and diffs them. Exposed for
// dry runs.
func (s *Syncer) Compare(ctx context.Context) (*Diff, error) {
	var srcMap, dstMap map[string]store.Object

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcMap, err = listObjects(gctx, s.cfg.Source)
		return err
	})
	g.Go(func() error {
		var err error
		dstMap, err = listObjects(gctx, s.cfg.Destination)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	translate := PrefixTranslator(s.cfg.Source.Prefix, s.cfg.Destination.Prefix)
	return Compare(srcMap, dstMap, translate), nil
}

// copyAll fans pending objects out to a bounded worker pool. Every key
// is attempted independently; one key exhausting its retries does not
// cancel the others.
func (s *Syncer) copyAll(ctx context.Context, pending []store.Object) (copied, failed int) {
	sem := semaphore.NewWeighted(int64(s.cfg.maxConcurrency()))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, obj := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(obj store.Object) {
			defer wg.Done()
			defer sem.Release(1)
			err := s.copier.copy(ctx, obj)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				copied++
			}
			mu.Unlock()
		}(obj)
	}
	wg.Wait()
	return copied, failed
}

// PrefixTranslator maps a source key to its destination key by prefix
// substitution. Supplied to the diff as a function so non-trivial
// remapping schemes stay pluggable.
func PrefixTranslator(sourcePrefix, destPrefix string) KeyTranslator {
	return func(key string) string {
		return destPrefix + strings.TrimPrefix(key, sourcePrefix)
	}
}
