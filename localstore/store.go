package localstore

import (
	"errors"

	"github.com/fitroom/fitroom-client/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a key has no snapshot.
var ErrNotFound = errors.New("localstore: key not found")

// Store is the on-device durable key-value blob store. Collection
// snapshots and sync metadata live here; presence state never does.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an opened client database. The caller is responsible for
// running model.AutoMigrateClient first.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle so the mutation queue and sync
// history can share one transaction scope with snapshot writes.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Get returns the latest snapshot for key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var blob model.SnapshotBlob
	err := s.db.Where("key = ?", key).Order("generation DESC").First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob.Value, nil
}

// Set durably replaces the snapshot for key.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return SetIn(tx, key, value)
	})
}

// Update runs fn inside one transaction. Sync engines use it to write a
// snapshot and append a queued mutation in the same atomic step, so there
// is no window where local state changed without its enqueue.
func (s *Store) Update(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// SetIn writes a snapshot inside an existing transaction. The new
// generation is inserted before prior generations are deleted, so a crash
// between the two leaves the previous valid snapshot readable.
func SetIn(tx *gorm.DB, key string, value []byte) error {
	var current int64
	row := tx.Model(&model.SnapshotBlob{}).
		Where("key = ?", key).
		Select("COALESCE(MAX(generation), 0)").
		Row()
	if err := row.Scan(&current); err != nil {
		return err
	}
	next := model.SnapshotBlob{Key: key, Generation: current + 1, Value: value}
	if err := tx.Create(&next).Error; err != nil {
		return err
	}
	return tx.Where("key = ? AND generation < ?", key, next.Generation).
		Delete(&model.SnapshotBlob{}).Error
}

// Delete removes every generation of a key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&model.SnapshotBlob{}).Error
}
