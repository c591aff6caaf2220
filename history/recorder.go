package history

import (
	"sync"
	"time"

	"github.com/fitroom/fitroom-client/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry holds one sync outcome to be recorded.
type Entry struct {
	Collection string
	Op         string // pull | push
	Outcome    string // success | error | skipped
	Error      string
	Items      int
	Duration   time.Duration
}

// Recorder persists sync outcomes asynchronously in batches. It is a
// diagnostics trail only; entries may be dropped under backpressure.
type Recorder struct {
	db     *gorm.DB
	ch     chan *model.SyncHistory
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Recorder and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Recorder {
	r := &Recorder{
		db:     db,
		ch:     make(chan *model.SyncHistory, 256),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues one entry for async write.
func (r *Recorder) Record(entry Entry) {
	rec := &model.SyncHistory{
		Collection: entry.Collection,
		Op:         entry.Op,
		Outcome:    entry.Outcome,
		Error:      entry.Error,
		Items:      entry.Items,
		DurationMs: int(entry.Duration.Milliseconds()),
	}
	select {
	case r.ch <- rec:
	default:
		r.logger.Warn("history channel full, dropping entry",
			zap.String("collection", entry.Collection),
			zap.String("op", entry.Op))
	}
}

// Recent returns the newest entries for a collection.
func (r *Recorder) Recent(collection string, limit int) ([]model.SyncHistory, error) {
	var out []model.SyncHistory
	err := r.db.Where("collection = ?", collection).
		Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Stop flushes remaining entries and shuts down the worker. It blocks
// until the worker goroutine has finished.
func (r *Recorder) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.SyncHistory, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.Create(&batch).Error; err != nil {
			r.logger.Error("history batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-r.ch:
			batch = append(batch, rec)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stopCh:
			// Drain remaining entries.
			for {
				select {
				case rec := <-r.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}
