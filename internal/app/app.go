package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"github.com/dori/taskdeck/internal/api"
	"github.com/dori/taskdeck/internal/board"
	"github.com/dori/taskdeck/internal/config"
	"github.com/dori/taskdeck/internal/db"
	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/notify"
	"github.com/dori/taskdeck/internal/session"
)

// Teardown reasons that the user asked for and so need no notification
const ReasonLogout = "logout"

// App holds the application state and dependencies
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	DB       *db.DB
	Session  *session.Holder
	Guard    *session.Guard
	API      *api.Client
	Board    *board.Synchronizer
	Notifier *notify.Notifier

	lockFile *flock.Flock
	redis    *redis.Client
	relay    *session.RedisRelay
	logClose io.Closer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &App{
		Config:   cfg,
		Notifier: notify.NewNotifier(cfg.Notifications),
		lockFile: flock.New(cfg.LockPath()),
	}

	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	logger, closer, err := logging.OpenFile(cfg.LogPath(), opts)
	if err != nil {
		logger = logging.Discard()
	} else {
		a.logClose = closer
	}
	a.Logger = logger

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = database
	logger.Debug("store opened", "path", database.Path())

	holderOpts := []session.Option{
		session.WithLocker(a.lockFile),
		session.WithLogger(logger.WithPrefix("session")),
	}
	if cfg.RedisURL != "" {
		a.connectRedis()
		if a.relay != nil {
			holderOpts = append(holderOpts, session.WithPublisher(a.relay))
		}
	}

	holder, err := session.NewHolder(database, holderOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = holder
	a.Guard = session.NewGuard(holder, time.Now, logger.WithPrefix("guard"))

	a.API = api.New(cfg.APIBaseURL,
		api.WithTimeout(cfg.RequestTimeout.Duration),
		api.WithTokenSource(holder),
		api.WithLogger(logger.WithPrefix("api")),
	)

	a.Board = board.New(a.API,
		board.WithCache(database),
		board.WithSession(holder),
		board.WithLogger(logger.WithPrefix("board")),
	)

	holder.Subscribe(a.onSessionEvent)

	return a, nil
}

// connectRedis sets up the optional relay. The app works without it.
func (a *App) connectRedis() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := session.DialRedis(ctx, a.Config.RedisURL)
	if err != nil {
		a.Logger.Warn("redis relay disabled", "err", err)
		return
	}
	a.redis = client
	a.relay = session.NewRedisRelay(client, a.Config.RedisChannel, a.Logger.WithPrefix("relay"))
}

func (a *App) onSessionEvent(ev session.Event) {
	if ev.Kind != session.EventTornDown {
		return
	}
	a.Board.Invalidate()
	if ev.Reason != ReasonLogout && !ev.External {
		if err := a.Notifier.SendSessionEnded(ev.Reason); err != nil {
			a.Logger.Debug("notification failed", "err", err)
		}
	}
}

// Start runs the background session watchers until Close
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Session.Watch(ctx, a.Config.WatchInterval.Duration)
	}()

	if a.relay != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Session.Listen(ctx, a.relay); err != nil {
				a.Logger.Warn("relay stopped", "err", err)
			}
		}()
	}
}

// Close cleans up application resources
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
		a.wg.Wait()
	}

	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if a.lockFile != nil {
		a.lockFile.Close()
	}
	if a.logClose != nil {
		a.logClose.Close()
	}
	return errors.Join(errs...)
}
