package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"calendar-sync/internal/models"
)

const (
	keyUsers     = "snapshot:users"
	keyGroups    = "snapshot:groups"
	keySchedules = "snapshot:schedules"
	keyChats     = "snapshot:chats"
)

// BadgerSink stores each collection as one JSON value in an embedded Badger
// database. A Save rewrites all four keys in one transaction.
type BadgerSink struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens (or creates) a Badger directory at path.
func OpenBadger(path string, log *slog.Logger) (*BadgerSink, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return NewBadgerSink(db, log), nil
}

// NewBadgerSink wraps an already open database.
func NewBadgerSink(db *badger.DB, log *slog.Logger) *BadgerSink {
	return &BadgerSink{db: db, log: log}
}

func (b *BadgerSink) Load(_ context.Context) (models.Snapshot, error) {
	var snapshot models.Snapshot
	err := b.db.View(func(txn *badger.Txn) error {
		for key, dst := range map[string]any{
			keyUsers:     &snapshot.Identities,
			keyGroups:    &snapshot.Groups,
			keySchedules: &snapshot.Schedules,
			keyChats:     &snapshot.Chats,
		} {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, dst) }); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}
		return nil
	})
	return snapshot, err
}

func (b *BadgerSink) Save(_ context.Context, snapshot models.Snapshot) error {
	values := map[string]any{
		keyUsers:     snapshot.Identities,
		keyGroups:    snapshot.Groups,
		keySchedules: snapshot.Schedules,
		keyChats:     snapshot.Chats,
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for key, v := range values {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerSink) Close() error {
	return b.db.Close()
}
