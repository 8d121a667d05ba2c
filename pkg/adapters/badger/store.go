// Package badger implements ports.StateStore on an embedded BadgerDB,
// for single-node deployments that want durable sessions without a server.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	bdb "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "state/"

// Config holds the options of Open.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool
	// TTL expires sessions that are not saved again in time. Zero keeps them forever.
	TTL time.Duration
	// Logger receives BadgerDB's own logs. Nil silences them.
	Logger *slog.Logger
}

// Store implements ports.StateStore on BadgerDB.
type Store struct {
	db  *bdb.DB
	ttl time.Duration
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) a database and wraps it in a Store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts bdb.Options
	if cfg.InMemory {
		opts = bdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = bdb.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := bdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, ttl: cfg.TTL}, nil
}

func key(userID string) []byte {
	return []byte(keyPrefix + userID)
}

// Save writes the state of userID.
func (s *Store) Save(ctx context.Context, userID string, state *domain.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.db.Update(func(txn *bdb.Txn) error {
		e := bdb.NewEntry(key(userID), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Load reads the state of userID.
func (s *Store) Load(ctx context.Context, userID string) (*domain.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state domain.State
	err := s.db.View(func(txn *bdb.Txn) error {
		item, err := txn.Get(key(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, bdb.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return &state, nil
}

// Delete removes the state of userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.db.Update(func(txn *bdb.Txn) error {
		return txn.Delete(key(userID))
	})
}

// List returns the stored user ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	users := []string{}
	err := s.db.View(func(txn *bdb.Txn) error {
		opts := bdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			users = append(users, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
