package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/scheduler"
	"github.com/fitroom/fitroom-client/transport"
	"go.uber.org/zap"
)

const heartbeatTask = "presence:heartbeat"

// Manager tracks who is live in the current workout room. It owns one
// realtime channel at a time: joining a new room leaves the previous one
// first. The roster is ephemeral — rebuilt wholesale from every sync
// snapshot and patched by join/leave deltas in between. Peers that
// vanish without a leave frame are aged out by the staleness window
// rather than removed.
//
// Presence operations report success as a boolean and log their errors;
// a flaky room must never crash a workout session.
type Manager struct {
	client  *transport.Client
	session *auth.Session
	sched   *scheduler.Scheduler
	cfg     config.PresenceConfig
	logger  *zap.Logger
	now     func() time.Time

	// onJoin / onLeave fire for peers only, never for self events.
	onJoin  func(model.PresenceState)
	onLeave func(userID string)

	mu      sync.RWMutex
	roomID  string
	channel *transport.Channel
	self    model.PresenceState
	roster  map[string]model.PresenceState
}

// NewManager creates a presence manager. sched drives the heartbeat.
func NewManager(client *transport.Client, session *auth.Session, sched *scheduler.Scheduler, cfg config.PresenceConfig, logger *zap.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 60 * time.Second
	}
	return &Manager{
		client:  client,
		session: session,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		roster:  make(map[string]model.PresenceState),
	}
}

// SetHandlers registers peer join/leave callbacks. Must be called
// before JoinRoom.
func (m *Manager) SetHandlers(onJoin func(model.PresenceState), onLeave func(userID string)) {
	m.onJoin = onJoin
	m.onLeave = onLeave
}

// JoinRoom enters a workout room and starts broadcasting self presence.
// Already being in the room is success; being in another room leaves it
// first.
func (m *Manager) JoinRoom(ctx context.Context, roomID string, info model.PresenceState) bool {
	uid := m.session.CurrentUserID()
	if uid == "" {
		m.logger.Warn("join room skipped: not signed in", zap.String("room", roomID))
		return false
	}

	m.mu.Lock()
	if m.roomID == roomID {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	m.LeaveRoom(ctx)

	ch, err := m.client.Open(ctx, "room:"+roomID)
	if err != nil {
		m.logger.Warn("join room failed", zap.String("room", roomID), zap.Error(err))
		return false
	}

	now := m.now()
	self := info
	self.UserID = uid
	if self.Status == "" {
		self.Status = model.PresenceOnline
	}
	self.JoinedAt = now
	self.LastSeenAt = now

	m.mu.Lock()
	m.roomID = roomID
	m.channel = ch
	m.self = self
	m.roster = map[string]model.PresenceState{uid: self}
	m.mu.Unlock()

	if err := ch.Track(ctx, uid, self); err != nil {
		m.logger.Warn("presence track failed", zap.String("room", roomID), zap.Error(err))
	}

	go m.reduce(ch)
	m.sched.AddTicker(heartbeatTask, m.cfg.HeartbeatInterval, m.heartbeat)

	m.logger.Info("joined room", zap.String("room", roomID))
	return true
}

// LeaveRoom exits the current room. Safe to call when not in one.
func (m *Manager) LeaveRoom(ctx context.Context) bool {
	m.mu.Lock()
	ch := m.channel
	room := m.roomID
	m.roomID = ""
	m.channel = nil
	m.roster = make(map[string]model.PresenceState)
	m.mu.Unlock()

	if ch == nil {
		return true
	}
	m.sched.Remove(heartbeatTask)

	if err := ch.Untrack(ctx); err != nil {
		m.logger.Warn("presence untrack failed", zap.String("room", room), zap.Error(err))
	}
	if err := ch.Close(); err != nil {
		m.logger.Warn("channel close failed", zap.String("room", room), zap.Error(err))
	}
	m.logger.Info("left room", zap.String("room", room))
	return true
}

// UpdateStatus broadcasts a new activity state for self.
func (m *Manager) UpdateStatus(ctx context.Context, status model.PresenceStatus, activity, exercise string) bool {
	m.mu.Lock()
	ch := m.channel
	if ch == nil {
		m.mu.Unlock()
		m.logger.Warn("status update skipped: not in a room")
		return false
	}
	m.self.Status = status
	m.self.Activity = activity
	m.self.CurrentExercise = exercise
	m.self.LastSeenAt = m.now()
	self := m.self
	m.roster[self.UserID] = self
	m.mu.Unlock()

	if err := ch.Track(ctx, self.UserID, self); err != nil {
		m.logger.Warn("status broadcast failed", zap.Error(err))
		return false
	}
	return true
}

// Roster returns a copy of the current room roster, stale entries
// included.
func (m *Manager) Roster() []model.PresenceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PresenceState, 0, len(m.roster))
	for _, p := range m.roster {
		out = append(out, p)
	}
	return out
}

// Get returns one participant's last-known state.
func (m *Manager) Get(userID string) (model.PresenceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.roster[userID]
	return p, ok
}

// IsOnline reports whether a participant is present, fresh within the
// staleness window, and not explicitly offline.
func (m *Manager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnlineLocked(userID, m.now())
}

// OnlineCount counts participants that pass the IsOnline test.
func (m *Manager) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for uid := range m.roster {
		if m.isOnlineLocked(uid, now) {
			n++
		}
	}
	return n
}

// RoomID returns the current room, or "" when not in one.
func (m *Manager) RoomID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roomID
}

func (m *Manager) isOnlineLocked(userID string, now time.Time) bool {
	p, ok := m.roster[userID]
	if !ok {
		return false
	}
	if p.Status == model.PresenceOffline {
		return false
	}
	return now.Sub(p.LastSeenAt) <= m.cfg.StalenessWindow
}

// heartbeat re-tracks self with a fresh LastSeenAt so peers never age
// us out while the app is alive.
func (m *Manager) heartbeat() {
	m.mu.Lock()
	ch := m.channel
	if ch == nil {
		m.mu.Unlock()
		return
	}
	m.self.LastSeenAt = m.now()
	self := m.self
	m.roster[self.UserID] = self
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Track(ctx, self.UserID, self); err != nil {
		m.logger.Warn("presence heartbeat failed", zap.Error(err))
	}
}

// reduce folds channel events into the roster until the channel closes.
// Every apply checks channel identity so a draining reducer from a room
// already left cannot touch the new room's roster.
func (m *Manager) reduce(ch *transport.Channel) {
	for ev := range ch.Events() {
		switch ev.Kind {
		case transport.EventSync:
			m.applySync(ch, ev.Roster)
		case transport.EventJoin:
			m.applyJoin(ch, ev.Key, ev.Presence)
		case transport.EventLeave:
			m.applyLeave(ch, ev.Key)
		case transport.EventStatus:
			if ev.Status == transport.StatusChannelError || ev.Status == transport.StatusTimedOut {
				m.logger.Warn("presence channel degraded",
					zap.String("status", string(ev.Status)))
			}
		}
	}
}

// applySync replaces the roster wholesale. Participants missing from
// the snapshot are gone, whatever the deltas said before.
func (m *Manager) applySync(ch *transport.Channel, raw map[string]json.RawMessage) {
	next := make(map[string]model.PresenceState, len(raw))
	for key, payload := range raw {
		var p model.PresenceState
		if err := json.Unmarshal(payload, &p); err != nil {
			m.logger.Warn("malformed presence entry dropped",
				zap.String("user", key), zap.Error(err))
			continue
		}
		if p.UserID == "" {
			p.UserID = key
		}
		next[p.UserID] = p
	}

	m.mu.Lock()
	if m.channel != ch {
		m.mu.Unlock()
		return
	}
	// Self is authoritative locally between heartbeats.
	next[m.self.UserID] = m.self
	m.roster = next
	m.mu.Unlock()
}

func (m *Manager) applyJoin(ch *transport.Channel, key string, payload json.RawMessage) {
	var p model.PresenceState
	if err := json.Unmarshal(payload, &p); err != nil {
		m.logger.Warn("malformed join payload dropped",
			zap.String("user", key), zap.Error(err))
		return
	}
	if p.UserID == "" {
		p.UserID = key
	}

	m.mu.Lock()
	if m.channel != ch {
		m.mu.Unlock()
		return
	}
	isSelf := p.UserID == m.self.UserID
	if !isSelf {
		m.roster[p.UserID] = p
	}
	m.mu.Unlock()

	// Own join frames echo back from the wire; peers should not be
	// notified about themselves.
	if !isSelf && m.onJoin != nil {
		m.onJoin(p)
	}
}

func (m *Manager) applyLeave(ch *transport.Channel, key string) {
	m.mu.Lock()
	if m.channel != ch {
		m.mu.Unlock()
		return
	}
	isSelf := key == m.self.UserID
	if !isSelf {
		delete(m.roster, key)
	}
	m.mu.Unlock()

	if !isSelf && m.onLeave != nil {
		m.onLeave(key)
	}
}
