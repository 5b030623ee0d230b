// Package daemon composes the sync core into a runnable fx application.
package daemon

import (
	"context"

	"github.com/matheus3301/parley/internal/action"
	"github.com/matheus3301/parley/internal/blob"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/cache"
	"github.com/matheus3301/parley/internal/fetch"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/logging"
	"github.com/matheus3301/parley/internal/session"
	"github.com/matheus3301/parley/internal/subs"
	"github.com/matheus3301/parley/internal/transport"
	"github.com/matheus3301/parley/internal/view"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	APIURL      string
	WSURL       string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideCredentials,
			provideBlobStore,
			provideStore,
			provideClient,
			provideWSTransport,
			provideCoordinator,
			provideDispatcher,
			provideCommands,
			provideSelectors,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCredentials(p Params, logger *zap.Logger) (*session.CredentialStore, error) {
	path := session.CredentialDBPath(p.SessionName)
	creds, err := session.OpenCredentialStore(path)
	if err != nil {
		return nil, err
	}
	logger.Info("credential store opened", zap.String("path", path))
	return creds, nil
}

func provideBlobStore(p Params) (*blob.Store, error) {
	return blob.NewStore(session.MediaDir(p.SessionName))
}

func provideStore() *cache.Store {
	return cache.NewStore()
}

func provideClient(p Params, creds *session.CredentialStore, logger *zap.Logger) *transport.Client {
	return transport.NewClient(p.APIURL, creds, logger)
}

func provideWSTransport(p Params, creds *session.CredentialStore, logger *zap.Logger) *transport.WSTransport {
	return transport.NewWSTransport(p.WSURL, creds, logger)
}

func provideCoordinator(store *cache.Store, client *transport.Client, blobs *blob.Store, creds *session.CredentialStore, b *bus.Bus, logger *zap.Logger) *fetch.Coordinator {
	policy := fetch.Policy{
		OnUnauthorized: func() {
			// The tokens are dead; sign the session out so the next run
			// starts clean.
			if err := creds.Clear(); err != nil {
				logger.Error("clear credentials", zap.Error(err))
			}
		},
	}
	return fetch.NewCoordinator(store, client, blobs, b, logger, policy)
}

func provideDispatcher(store *cache.Store, coord *fetch.Coordinator, ws *transport.WSTransport, b *bus.Bus, logger *zap.Logger) *subs.Dispatcher {
	return subs.NewDispatcher(store, coord, ws, b, logger)
}

func provideCommands(client *transport.Client, creds *session.CredentialStore, b *bus.Bus, logger *zap.Logger) *action.Commands {
	policy := action.Policy{
		OnUnauthorized: func() {
			if err := creds.Clear(); err != nil {
				logger.Error("clear credentials", zap.Error(err))
			}
		},
	}
	return action.NewCommands(client, b, logger, policy)
}

func provideSelectors(store *cache.Store) *view.Selectors {
	return view.NewSelectors(store)
}

func registerLifecycle(lc fx.Lifecycle, d *subs.Dispatcher, coord *fetch.Coordinator, creds *session.CredentialStore, lk *lock.Lock, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			stored, err := creds.Get()
			if err != nil {
				return err
			}
			if stored == nil {
				logger.Info("no credentials found, auth required")
				return nil
			}

			// Subscriptions first, then the warm fetches; anything pushed
			// while the lists load is reconciled on top of them.
			go func() {
				if err := d.Start(ctx); err != nil {
					logger.Error("open subscriptions", zap.Error(err))
					return
				}
				coord.FetchChats(ctx)
				coord.FetchContacts(ctx)
				coord.FetchBlockedUsers(ctx)
				coord.FetchTypingStatuses(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			d.Stop()
			if err := creds.Close(); err != nil {
				logger.Warn("error closing credential store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
