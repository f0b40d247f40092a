package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/devsync/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrCacheConnection is returned when the cache store cannot be reached
var ErrCacheConnection = errors.New("failed to connect to redis")

// SelectError reports a database that could not be selected
type SelectError struct {
	DB  int
	Err error
}

func (e *SelectError) Error() string {
	return fmt.Sprintf("select db %d: %v", e.DB, e.Err)
}

func (e *SelectError) Unwrap() error {
	return e.Err
}

// ScanError reports a failed SCAN for a prefix
type ScanError struct {
	DB     int
	Prefix string
	Cursor uint64
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan db %d prefix %q at cursor %d: %v", e.DB, e.Prefix, e.Cursor, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// DeleteError reports a failed bulk DEL for a prefix
type DeleteError struct {
	DB     int
	Prefix string
	Keys   int
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %d keys in db %d prefix %q: %v", e.Keys, e.DB, e.Prefix, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// PrefixReport is the outcome of cleaning one prefix in one database
type PrefixReport struct {
	Prefix  string
	Deleted int64
	Batches int
	Scans   int
	Err     error
}

// DatabaseReport is the outcome for one logical database
type DatabaseReport struct {
	DB       int
	Prefixes []PrefixReport
	Err      error
}

// Report summarises an eviction run
type Report struct {
	Databases []DatabaseReport
	Duration  time.Duration
}

// TotalDeleted returns the number of keys deleted across all databases
func (r *Report) TotalDeleted() int64 {
	var total int64

	for _, db := range r.Databases {
		for _, p := range db.Prefixes {
			total += p.Deleted
		}
	}

	return total
}

// Errors returns every database and prefix level error in the report
func (r *Report) Errors() []error {
	var errs []error

	for _, db := range r.Databases {
		if db.Err != nil {
			errs = append(errs, db.Err)
		}

		for _, p := range db.Prefixes {
			if p.Err != nil {
				errs = append(errs, p.Err)
			}
		}
	}

	return errs
}

// EvictorInterface removes cache keys by prefix
type EvictorInterface interface {
	Evict(ctx context.Context) (*Report, error)
}

// Evictor deletes every key under the configured prefixes in each configured
// database, sequentially, over one dedicated connection.
type Evictor struct {
	log  logrus.FieldLogger
	cfg  *Config
	dial func() keyStore
}

// NewEvictor creates a new evictor backed by Redis
func NewEvictor(logger logrus.FieldLogger, cfg *Config) (*Evictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Evictor{
		log: logger.WithFields(logrus.Fields{
			"component": "cache-evictor",
			"addr":      cfg.Address(),
		}),
		cfg: cfg,
		dial: func() keyStore {
			return newRedisStore(cfg)
		},
	}, nil
}

// Evict runs the cleanup. The returned error is only set when the store could
// not be reached; per-database and per-prefix failures are recorded in the
// report and do not stop the remaining work.
func (e *Evictor) Evict(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	prefixes := e.cfg.Prefixes()

	if len(prefixes) == 0 || len(e.cfg.DBList) == 0 {
		e.log.WithFields(logrus.Fields{
			"dbs":      e.cfg.DBList,
			"prefixes": prefixes,
		}).Info("Nothing to evict")

		return report, nil
	}

	store := e.dial()
	defer func() {
		if err := store.Close(); err != nil {
			e.log.WithError(err).Debug("Failed to close redis connection")
		}
	}()

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrCacheConnection, e.cfg.Address(), err)
	}

	for _, db := range e.cfg.DBList {
		report.Databases = append(report.Databases, e.evictDatabase(ctx, store, db, prefixes))
	}

	report.Duration = time.Since(start)

	e.log.WithFields(logrus.Fields{
		"deleted":  report.TotalDeleted(),
		"errors":   len(report.Errors()),
		"duration": report.Duration,
	}).Info("Cache eviction finished")

	return report, nil
}

func (e *Evictor) evictDatabase(ctx context.Context, store keyStore, db int, prefixes []string) DatabaseReport {
	log := e.log.WithField("db", db)
	result := DatabaseReport{DB: db}

	log.Info("Selecting database")

	if err := store.Select(ctx, db); err != nil {
		result.Err = &SelectError{DB: db, Err: err}
		log.WithError(err).Error("Failed to select database, skipping")

		return result
	}

	for _, prefix := range prefixes {
		result.Prefixes = append(result.Prefixes, e.evictPrefix(ctx, store, db, prefix))
	}

	return result
}

func (e *Evictor) evictPrefix(ctx context.Context, store keyStore, db int, prefix string) PrefixReport {
	log := e.log.WithFields(logrus.Fields{"db": db, "prefix": prefix})
	result := PrefixReport{Prefix: prefix}

	log.Info("Cleaning key prefix")

	it := newKeyIterator(store, prefix, e.cfg.BatchSize)
	for it.Next(ctx) {
		keys := it.Batch()
		if len(keys) == 0 {
			continue
		}

		n, err := store.Del(ctx, keys...)
		if err != nil {
			result.Err = &DeleteError{DB: db, Prefix: prefix, Keys: len(keys), Err: err}
			log.WithError(err).Error("Failed to delete keys, abandoning prefix")

			break
		}

		result.Batches++
		result.Deleted += n
		observability.CacheKeysDeleted.WithLabelValues(fmt.Sprint(db), prefix).Add(float64(n))

		log.WithFields(logrus.Fields{
			"deleted": n,
			"keys":    keys,
		}).Debug("Deleted key batch")
	}

	result.Scans = it.Scans()

	if err := it.Err(); err != nil && result.Err == nil {
		result.Err = &ScanError{DB: db, Prefix: prefix, Cursor: it.Cursor(), Err: err}
		log.WithError(err).Error("Failed to scan keys, abandoning prefix")
	}

	log.WithFields(logrus.Fields{
		"deleted": result.Deleted,
		"batches": result.Batches,
	}).Info("Key prefix cleaned")

	return result
}

// Verify interface compliance at compile time
var _ EvictorInterface = (*Evictor)(nil)
