package client

import (
	"context"
	"fmt"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	dbadapter "github.com/fitroom/fitroom-client/db"
	"github.com/fitroom/fitroom-client/history"
	"github.com/fitroom/fitroom-client/localstore"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/netmon"
	"github.com/fitroom/fitroom-client/presence"
	"github.com/fitroom/fitroom-client/queue"
	"github.com/fitroom/fitroom-client/remote"
	"github.com/fitroom/fitroom-client/scheduler"
	"github.com/fitroom/fitroom-client/syncer"
	"github.com/fitroom/fitroom-client/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const autoSyncTask = "client:autosync"

// App assembles the full offline-first client: durable local state, the
// per-collection sync engines, the realtime transport, and presence.
// Construct once at startup, SignIn to go live, Close on shutdown.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	deviceID string

	Session *auth.Session
	Monitor *netmon.Monitor
	Sched   *scheduler.Scheduler
	History *history.Recorder

	store *localstore.Store
	wire  transport.Wire
	rt    *transport.Client
	authc *remote.AuthClient

	Friends  *syncer.FriendGraph
	Edges    *syncer.Engine[model.RelationshipEdge]
	Profile  *syncer.Engine[model.FitnessProfile]
	Messages *syncer.Engine[model.DirectMessage]
	Presence *presence.Manager

	channels      []*transport.Channel
	cancelMonitor func()
}

// New builds an App from config. Nothing touches the network until
// SignIn; restore of queued mutations and snapshots happens here.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("client: open db: %w", err)
	}
	if err := model.AutoMigrateClient(db); err != nil {
		return nil, fmt.Errorf("client: migrate: %w", err)
	}

	deviceID := cfg.Client.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	logger = logger.With(zap.String("device_id", deviceID))

	app := &App{
		cfg:      cfg,
		logger:   logger,
		deviceID: deviceID,
		Session:  auth.NewSession(logger),
		Monitor: netmon.NewMonitor(
			netmon.HTTPProbe(cfg.Client.RemoteURL, cfg.Sync.ProbeTimeout), logger),
		Sched:   scheduler.New(logger),
		History: history.New(db, logger),
		store:   localstore.New(db, logger),
		authc:   remote.NewAuthClient(cfg.Client.RemoteURL, cfg.Sync.RequestTimeout),
	}

	app.wire, err = transport.NewWire(cfg.Transport, app.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("client: transport: %w", err)
	}
	app.rt = transport.NewClient(app.wire, cfg.Transport.EventBuf, logger)

	app.Edges, err = syncer.NewEngine(syncer.EdgesCollection(),
		collectionRemote[model.RelationshipEdge](app, syncer.CollectionEdges),
		app.Session, app.Monitor, app.store, app.History, logger)
	if err != nil {
		return nil, err
	}
	app.Profile, err = syncer.NewEngine(syncer.ProfileCollection(),
		collectionRemote[model.FitnessProfile](app, syncer.CollectionProfile),
		app.Session, app.Monitor, app.store, app.History, logger)
	if err != nil {
		return nil, err
	}
	app.Messages, err = syncer.NewEngine(syncer.MessagesCollection(),
		collectionRemote[model.DirectMessage](app, syncer.CollectionMessages),
		app.Session, app.Monitor, app.store, app.History, logger)
	if err != nil {
		return nil, err
	}

	app.Friends = syncer.NewFriendGraph(app.Edges, app.Session, logger)
	app.Presence = presence.NewManager(app.rt, app.Session, app.Sched, cfg.Presence, logger)
	return app, nil
}

func collectionRemote[E any](app *App, name string) syncer.Remote[E] {
	return remote.NewClient[E](app.cfg.Client.RemoteURL, name,
		app.Session, app.cfg.Sync.RequestTimeout, app.logger)
}

// Register creates a backend account and signs in.
func (a *App) Register(ctx context.Context, username, password string) error {
	resp, err := a.authc.Register(ctx, username, password)
	if err != nil {
		return err
	}
	return a.startWithToken(ctx, resp.Token)
}

// SignIn authenticates and brings the client online: reachability
// probing, realtime channels, auto sync, and an initial full sync.
func (a *App) SignIn(ctx context.Context, username, password string) error {
	resp, err := a.authc.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return a.startWithToken(ctx, resp.Token)
}

func (a *App) startWithToken(ctx context.Context, token string) error {
	if err := a.Session.SignIn(token, a.cfg.Security.JWTSecret); err != nil {
		return err
	}
	a.start(ctx)
	return a.SyncAll(ctx)
}

func (a *App) start(ctx context.Context) {
	uid := a.Session.CurrentUserID()

	a.Monitor.Start(a.cfg.Sync.ProbeInterval, a.cfg.Sync.ProbeTimeout)

	// Coming back online drains whatever queued while offline.
	transitions, cancel := a.Monitor.Subscribe()
	a.cancelMonitor = cancel
	go func() {
		for online := range transitions {
			if online {
				a.logger.Info("back online, draining queued mutations")
				if err := a.SyncAll(context.Background()); err != nil {
					a.logger.Warn("reconnect sync failed", zap.Error(err))
				}
			}
		}
	}()

	if a.cfg.Sync.AutoSyncInterval > 0 {
		a.Sched.AddTicker(autoSyncTask, a.cfg.Sync.AutoSyncInterval, func() {
			if err := a.SyncAll(context.Background()); err != nil {
				a.logger.Warn("auto sync failed", zap.Error(err))
			}
		})
	}

	a.openFeed(ctx, uid, syncer.CollectionEdges, func(ch *transport.Channel) { a.Edges.Consume(ch) })
	a.openFeed(ctx, uid, syncer.CollectionProfile, func(ch *transport.Channel) { a.Profile.Consume(ch) })
	a.openFeed(ctx, uid, syncer.CollectionMessages, func(ch *transport.Channel) { a.Messages.Consume(ch) })
}

// openFeed subscribes one collection's per-user delta topic. A feed
// that cannot open is not fatal: pulls still converge the state.
func (a *App) openFeed(ctx context.Context, uid, collection string, consume func(*transport.Channel)) {
	ch, err := a.rt.Open(ctx, "user:"+uid+":"+collection)
	if err != nil {
		a.logger.Warn("delta feed unavailable",
			zap.String("collection", collection), zap.Error(err))
		return
	}
	a.channels = append(a.channels, ch)
	consume(ch)
}

// SyncAll runs pull-then-push on every collection. The first hard
// failure is returned; pull-side failures are absorbed per collection.
func (a *App) SyncAll(ctx context.Context) error {
	if err := a.Edges.Sync(ctx); err != nil {
		return err
	}
	if err := a.Profile.Sync(ctx); err != nil {
		return err
	}
	return a.Messages.Sync(ctx)
}

// PendingMutations totals queued offline writes across collections.
func (a *App) PendingMutations() int {
	total := 0
	for _, q := range []*queue.Queue{a.Edges.Queue(), a.Profile.Queue(), a.Messages.Queue()} {
		if n, err := q.Count(); err == nil {
			total += n
		}
	}
	return total
}

// SignOut leaves the room, tears down feeds, and clears the principal.
// Queued mutations stay durable for the next sign-in.
func (a *App) SignOut(ctx context.Context) {
	a.Presence.LeaveRoom(ctx)
	a.Sched.Remove(autoSyncTask)
	for _, ch := range a.channels {
		_ = ch.Close()
	}
	a.channels = nil
	if a.cancelMonitor != nil {
		a.cancelMonitor()
		a.cancelMonitor = nil
	}
	a.Session.SignOut()
}

// Close shuts the whole client down.
func (a *App) Close() error {
	a.SignOut(context.Background())
	a.Sched.Stop()
	a.Monitor.Stop()
	a.History.Stop()
	return a.wire.Close()
}
