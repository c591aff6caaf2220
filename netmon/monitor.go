package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc checks reachability of the backend. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Monitor tracks online/offline transitions. It is an oracle: other
// components ask it before attempting network work, but it never drives
// them itself. With no probe configured it fails safe to "assume online"
// so writes are still attempted (and fail individually) rather than
// queuing forever.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	probe  ProbeFunc
	subs   []*subscriber
	logger *zap.Logger
	stopCh chan struct{}
	once   sync.Once
}

type subscriber struct {
	ch chan bool
}

// NewMonitor creates a Monitor. probe may be nil, in which case the
// monitor reports online until told otherwise via SetOnline.
func NewMonitor(probe ProbeFunc, logger *zap.Logger) *Monitor {
	return &Monitor{
		online: true,
		probe:  probe,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// HTTPProbe returns a ProbeFunc that issues a HEAD request to the given
// health URL.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

// Start begins periodic probing. No-op when no probe is configured.
func (m *Monitor) Start(interval, timeout time.Duration) {
	if m.probe == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				err := m.probe(ctx)
				cancel()
				m.SetOnline(err == nil)
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts probing. Safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

// IsOnline reports the last known reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a reachability state, notifying subscribers on a
// transition. Platform connectivity callbacks feed in through here.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]*subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("reachability changed", zap.Bool("online", online))
	for _, s := range subs {
		select {
		case s.ch <- online:
		default:
			// Subscriber lagging; it will catch up on the next transition.
		}
	}
}

// Subscribe returns a channel of transition events and a cancel func.
// Only transitions are delivered, not the current state.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	s := &subscriber{ch: make(chan bool, 4)}
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub == s {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return s.ch, cancel
}
