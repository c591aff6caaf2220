package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a scheduled callback. A panic inside one run is contained and
// logged; the schedule keeps going.
type Task func()

// Scheduler runs the client's background timers under stable names: the
// auto-sync ticker, the presence heartbeat, and one-shot retry delays.
// Registering a name again replaces the previous schedule, so a room
// switch re-arms the heartbeat instead of stacking two.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*entry
	logger *zap.Logger
	halt   chan struct{}
	once   sync.Once
}

type entry struct {
	stop     chan struct{}
	periodic bool
	timer    *time.Timer
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*entry),
		logger: logger,
		halt:   make(chan struct{}),
	}
}

// AddTicker runs fn every interval until removed or the scheduler stops.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn Task) {
	e := &entry{stop: make(chan struct{}), periodic: true}

	s.mu.Lock()
	s.replaceLocked(name, e)
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.invoke(name, fn)
			case <-e.stop:
				return
			case <-s.halt:
				return
			}
		}
	}()
	s.logger.Info("periodic task armed",
		zap.String("task", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Re-adding the name before it fires
// re-arms the delay; the superseded one never runs.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn Task) {
	e := &entry{stop: make(chan struct{})}
	e.timer = time.AfterFunc(delay, func() {
		select {
		case <-e.stop:
			return
		case <-s.halt:
			return
		default:
		}
		s.invoke(name, fn)
		s.mu.Lock()
		if s.tasks[name] == e {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.replaceLocked(name, e)
	s.mu.Unlock()
}

// Remove cancels the named schedule. Unknown names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tasks[name]; ok {
		e.cancel()
		delete(s.tasks, name)
	}
}

// Stop cancels everything. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.halt) })
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.tasks {
		e.cancel()
		delete(s.tasks, name)
	}
}

// ListTickers names the periodic tasks currently armed.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name, e := range s.tasks {
		if e.periodic {
			names = append(names, name)
		}
	}
	return names
}

// replaceLocked installs e under name, cancelling any predecessor.
// Caller holds s.mu.
func (s *Scheduler) replaceLocked(name string, e *entry) {
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	s.tasks[name] = e
}

func (e *entry) cancel() {
	close(e.stop)
	if e.timer != nil {
		e.timer.Stop()
	}
}

// invoke runs fn with panic containment. A broken sync round must not
// kill the ticker that would retry it.
func (s *Scheduler) invoke(name string, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}
