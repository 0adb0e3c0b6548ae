// Package autosave persists soft PV values in BadgerDB so they survive a
// server restart.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/telemetry"
	"github.com/marmos91/dittoca/pkg/gdd"
	"github.com/marmos91/dittoca/pkg/metrics"
)

var (
	// ErrBadValue is returned for values that cannot be stored or for
	// records that no longer decode.
	ErrBadValue = errors.New("autosave: bad value")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("autosave: store closed")
)

// Config configures a Store.
type Config struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites makes every save durable before it returns.
	SyncWrites bool

	// GCInterval is the period of value log garbage collection and cache
	// metric sampling. Zero disables the loop.
	GCInterval time.Duration
}

// Store is a BadgerDB backed PV value store. Safe for concurrent use.
type Store struct {
	db      *badger.DB
	metrics metrics.AutosaveMetrics
	stop    chan struct{}
	done    chan struct{}
}

// Open opens or creates the store at cfg.Path. m may be nil.
func Open(cfg Config, m metrics.AutosaveMetrics) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("autosave: path is required")
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open autosave store: %w", err)
	}

	s := &Store{db: db, metrics: m}
	if cfg.GCInterval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.gcLoop(cfg.GCInterval)
	}
	logger.Debug("Autosave store opened", logger.KeyPath, cfg.Path)
	return s, nil
}

// Save stores the value of v, or of v's value child when v is a container.
func (s *Store) Save(ctx context.Context, name string, v *gdd.GDD) error {
	ctx, span := telemetry.StartAutosaveSpan(ctx, "save", name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeValue(v)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	start := time.Now()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyValue(name), data)
	})
	if s.metrics != nil {
		s.metrics.RecordSave(time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		return s.wrap(err)
	}
	return nil
}

// Load returns the stored value of name. found is false when nothing was
// saved under that name.
func (s *Store) Load(ctx context.Context, name string) (v *gdd.GDD, found bool, err error) {
	ctx, span := telemetry.StartAutosaveSpan(ctx, "load", name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyValue(name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			v, decErr = decodeValue(val)
			return decErr
		})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, false, s.wrap(err)
	}
	return v, v != nil, nil
}

// LoadAll returns every stored value keyed by PV name. Records that fail
// to decode are logged and skipped.
func (s *Store) LoadAll(ctx context.Context) (map[string]*gdd.GDD, error) {
	ctx, span := telemetry.StartAutosaveSpan(ctx, "load_all", prefixValue)
	defer span.End()

	out := make(map[string]*gdd.GDD)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixValue)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			name := string(item.Key()[len(prefixValue):])
			err := item.Value(func(val []byte) error {
				v, err := decodeValue(val)
				if err != nil {
					logger.Warn("Skipping unreadable autosave record",
						logger.KeyChannel, name, logger.KeyError, err)
					return nil
				}
				out[name] = v
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, v := range out {
			_ = v.Unreference()
		}
		telemetry.RecordError(ctx, err)
		return nil, s.wrap(err)
	}
	if s.metrics != nil {
		s.metrics.RecordRestore(len(out))
	}
	return out, nil
}

// Delete removes the stored value of name. Deleting a missing name is
// not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, span := telemetry.StartAutosaveSpan(ctx, "delete", name)
	defer span.End()

	return s.wrap(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyValue(name))
	}))
}

// Healthcheck verifies the database can serve a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.View(func(txn *badger.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", s.wrap(err))
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return s.db.Close()
}

func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// RunValueLogGC reports ErrNoRewrite when there was nothing
			// worth collecting.
			for s.db.RunValueLogGC(0.5) == nil {
			}
			if s.metrics != nil {
				s.metrics.RecordCacheHitRatio("block", s.db.BlockCacheMetrics().Ratio())
				s.metrics.RecordCacheHitRatio("index", s.db.IndexCacheMetrics().Ratio())
			}
		}
	}
}

func (s *Store) wrap(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}
