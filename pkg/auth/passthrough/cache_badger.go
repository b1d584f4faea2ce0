package passthrough

import (
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

const badgerKeyPrefix = "pta/"

// BadgerStore keeps cached passwords in a badger database so they survive
// restarts. Entries carry a badger TTL and disappear on their own.
type BadgerStore struct {
	db   *badgerdb.DB
	path string
}

// OpenBadgerStore opens or creates the database at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: badger password cache requires a path", auth.ErrConfiguration)
	}
	db, err := badgerdb.Open(badgerdb.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open password cache %s: %w", path, err)
	}
	logger.Debug("Opened pass-through password cache", logger.KeyPath, path)
	return &BadgerStore{db: db, path: path}, nil
}

func badgerKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}

func (s *BadgerStore) Get(key string) (CachedPassword, bool, error) {
	var value CachedPassword
	found := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, err = unmarshalCachedPassword(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return CachedPassword{}, false, fmt.Errorf("read cached password: %w", err)
	}
	return value, found, nil
}

func (s *BadgerStore) Put(key string, value CachedPassword, ttl time.Duration) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry(badgerKey(key), marshalCachedPassword(value))
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Healthcheck verifies the database still serves reads.
func (s *BadgerStore) Healthcheck() error {
	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("password cache healthcheck failed: %w", err)
	}
	return nil
}

// Path returns the database directory.
func (s *BadgerStore) Path() string { return s.path }

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
