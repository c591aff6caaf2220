package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fitroom/fitroom-client/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Queue is the durable FIFO record of one collection's local writes not
// yet confirmed remote. Rows are appended in the same transaction as the
// optimistic local write and removed only after the remote acknowledges
// the batch; a failed push leaves the queue untouched for retry.
type Queue struct {
	db         *gorm.DB
	collection string
	logger     *zap.Logger
}

// New creates a Queue for one collection over the client store DB.
func New(db *gorm.DB, collection string, logger *zap.Logger) *Queue {
	return &Queue{db: db, collection: collection, logger: logger}
}

// Collection returns the collection name this queue serves.
func (q *Queue) Collection() string {
	return q.collection
}

// Enqueue appends a mutation in its own transaction. Callers that also
// change local state should use EnqueueIn inside that state's transaction.
func (q *Queue) Enqueue(opType string, payload any) error {
	return q.db.Transaction(func(tx *gorm.DB) error {
		return q.EnqueueIn(tx, opType, payload)
	})
}

// EnqueueIn appends a mutation inside an existing transaction.
func (q *Queue) EnqueueIn(tx *gorm.DB, opType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}
	rec := &model.QueuedMutation{
		ID:           uuid.New().String(),
		Collection:   q.collection,
		OpType:       opType,
		Payload:      datatypes.JSON(raw),
		EnqueuedAtMs: time.Now().UnixMilli(),
	}
	if err := tx.Create(rec).Error; err != nil {
		return err
	}
	q.logger.Debug("mutation queued",
		zap.String("collection", q.collection),
		zap.String("op", opType),
		zap.String("id", rec.ID))
	return nil
}

// Pending returns the queued mutations in enqueue order. The queue is
// not modified; call Confirm with the same batch once the remote has
// acknowledged it.
func (q *Queue) Pending() ([]model.QueuedMutation, error) {
	var out []model.QueuedMutation
	err := q.db.Where("collection = ?", q.collection).
		Order("seq ASC").Find(&out).Error
	return out, err
}

// Count returns the number of queued mutations.
func (q *Queue) Count() (int, error) {
	var n int64
	err := q.db.Model(&model.QueuedMutation{}).
		Where("collection = ?", q.collection).Count(&n).Error
	return int(n), err
}

// Confirm removes exactly the given batch. Mutations enqueued after the
// batch was read survive, so a concurrent local write is never lost.
func (q *Queue) Confirm(batch []model.QueuedMutation) error {
	if len(batch) == 0 {
		return nil
	}
	seqs := make([]int64, len(batch))
	for i, m := range batch {
		seqs[i] = m.Seq
	}
	return q.db.Where("collection = ? AND seq IN ?", q.collection, seqs).
		Delete(&model.QueuedMutation{}).Error
}
