// Package app wires the session manager, the cart and wishlist reconcilers,
// the checkout dispatcher and the change feed into one running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/backend/fsstore"
	"storefront-sync/internal/backend/pgstore"
	"storefront-sync/internal/backend/rest"
	"storefront-sync/internal/checkout"
	"storefront-sync/internal/clock"
	"storefront-sync/internal/collection"
	"storefront-sync/internal/config"
	"storefront-sync/internal/localstore"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/transport"
)

const (
	backendTimeout = 30 * time.Second
	dialTimeout    = 10 * time.Second
	userAgent      = "storefront-sync"
)

// Deps overrides collaborators built from configuration. Zero fields are
// built from Config.
type Deps struct {
	Clock clock.Clock

	AuthEndpoint       auth.Endpoint
	Profiles           auth.ProfileStore
	CollectionEndpoint collection.Endpoint
	CheckoutEndpoint   checkout.Endpoint

	// Durable is the local store that survives restarts.
	Durable localstore.Store

	Navigator checkout.Navigator
}

// App is the running sync subsystem.
type App struct {
	Sessions *auth.Manager
	Cart     *collection.Reconciler
	Wishlist *collection.Reconciler
	Checkout *checkout.Dispatcher

	// Feed is nil when no realtime URL is configured.
	Feed *realtime.Feed

	cfg    *config.Config
	logger *slog.Logger

	unsubscribe []func()
	closers     []func() error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the subsystem from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (a *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if err := a.buildBackend(ctx, &deps); err != nil {
		return nil, err
	}
	durable, err := a.buildDurableStore(ctx, &deps)
	if err != nil {
		return nil, err
	}

	keys := localstore.NewKeys(cfg.Namespace)
	durableP := localstore.NewPersister(durable, logger)
	scopedP := localstore.NewPersister(localstore.NewMemory(), logger)

	a.Sessions, err = auth.New(auth.Config{
		Endpoint: deps.AuthEndpoint,
		Profiles: deps.Profiles,
		Durable:  durableP,
		Scoped:   scopedP,
		Keys:     keys,
		Clock:    deps.Clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}
	a.closers = append(a.closers, func() error { a.Sessions.Close(); return nil })

	for _, kind := range []collection.Kind{collection.KindCart, collection.KindWishlist} {
		r, err := collection.New(collection.Config{
			Kind:         kind,
			Endpoint:     deps.CollectionEndpoint,
			Sessions:     a.Sessions,
			Store:        durableP,
			Keys:         keys,
			Clock:        deps.Clock,
			Logger:       logger,
			MergeLimiter: mergeLimiter(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s reconciler: %w", kind, err)
		}
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		if kind == collection.KindCart {
			a.Cart = r
		} else {
			a.Wishlist = r
		}
	}

	a.Checkout, err = checkout.New(checkout.Config{
		Sessions:  a.Sessions,
		Cart:      a.Cart,
		Endpoint:  deps.CheckoutEndpoint,
		Navigator: deps.Navigator,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout dispatcher: %w", err)
	}

	if cfg.RealtimeURL != "" {
		var dialer *websocket.Dialer
		if cfg.ChromeTLS {
			dialer = transport.NewChromeDialer(dialTimeout)
		}
		a.Feed, err = realtime.New(realtime.Config{
			URL:         cfg.RealtimeURL,
			AnonKey:     cfg.Backend.AnonKey,
			Sessions:    a.Sessions,
			Collections: []realtime.Refresher{a.Cart, a.Wishlist},
			Auth:        a.Sessions,
			Dialer:      dialer,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating realtime feed: %w", err)
		}
	}

	return a, nil
}

// buildBackend fills the endpoints deps leaves empty. Auth, profiles and
// checkout always use the hosted backend; collections follow
// cfg.CollectionBackend.
func (a *App) buildBackend(ctx context.Context, deps *Deps) error {
	needREST := deps.AuthEndpoint == nil || deps.CheckoutEndpoint == nil ||
		(deps.Profiles == nil && a.cfg.CollectionBackend == config.BackendREST) ||
		(deps.CollectionEndpoint == nil && a.cfg.CollectionBackend == config.BackendREST)

	var client *rest.Client
	if needREST {
		var err error
		client, err = rest.New(rest.Config{
			BaseURL:   a.cfg.Backend.URL,
			AnonKey:   a.cfg.Backend.AnonKey,
			Timeout:   backendTimeout,
			ChromeTLS: a.cfg.ChromeTLS,
		})
		if err != nil {
			return fmt.Errorf("creating backend client: %w", err)
		}
	}
	if deps.AuthEndpoint == nil {
		deps.AuthEndpoint = client
	}
	if deps.CheckoutEndpoint == nil {
		deps.CheckoutEndpoint = client
	}

	if deps.CollectionEndpoint != nil {
		if deps.Profiles == nil && client != nil {
			deps.Profiles = client
		}
		return nil
	}

	switch a.cfg.CollectionBackend {
	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, a.cfg.Backend.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating postgres: %w", err)
		}
		deps.CollectionEndpoint = store
		if deps.Profiles == nil {
			deps.Profiles = store
		}
	case config.BackendFirestore:
		store, err := fsstore.Open(ctx, a.cfg.Backend.FirestoreProject, option.WithUserAgent(userAgent))
		if err != nil {
			return fmt.Errorf("opening firestore: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		deps.CollectionEndpoint = store
		if deps.Profiles == nil {
			deps.Profiles = store
		}
	default:
		deps.CollectionEndpoint = client
		if deps.Profiles == nil {
			deps.Profiles = client
		}
	}

	a.logger.Info("collection backend ready", slog.String("backend", a.cfg.CollectionBackend))
	return nil
}

// buildDurableStore opens the SQLite file, sealed when a key is configured.
// No path keeps durable state in memory.
func (a *App) buildDurableStore(ctx context.Context, deps *Deps) (localstore.Store, error) {
	store := deps.Durable
	if store == nil {
		if a.cfg.LocalStorePath == "" {
			a.logger.Warn("no local store path configured, state will not survive restarts")
			store = localstore.NewMemory()
		} else {
			db, err := localstore.OpenSQLite(ctx, a.cfg.LocalStorePath, a.logger)
			if err != nil {
				return nil, fmt.Errorf("opening local store: %w", err)
			}
			a.closers = append(a.closers, db.Close)
			store = db
		}
	}

	key, err := a.cfg.StoreKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return store, nil
	}
	sealed, err := localstore.NewSealed(store, key)
	if err != nil {
		return nil, fmt.Errorf("sealing local store: %w", err)
	}
	return sealed, nil
}

func mergeLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.MergeRate <= 0 {
		return nil
	}
	burst := cfg.MergeBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.MergeRate), burst)
}

// Start loads guest state, subscribes the reconcilers to session changes,
// processes the initial session and connects the change feed.
func (a *App) Start(ctx context.Context) {
	a.Cart.Start(ctx)
	a.Wishlist.Start(ctx)

	// Reconcilers must observe the initial session, so they subscribe first.
	a.unsubscribe = append(a.unsubscribe,
		a.Sessions.Subscribe(a.Cart.OnSessionChange),
		a.Sessions.Subscribe(a.Wishlist.OnSessionChange),
	)
	a.Sessions.Start()

	if a.Feed != nil {
		a.unsubscribe = append(a.unsubscribe, a.Sessions.Subscribe(a.Feed.OnSessionChange))
		runCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Feed.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("realtime feed stopped", slog.String("error", err.Error()))
			}
		}()
	}

	a.logger.Info("storefront sync started",
		slog.Int("cart_items", a.Cart.Snapshot().ItemCount),
		slog.Int("wishlist_items", a.Wishlist.Snapshot().ItemCount),
		slog.Bool("realtime", a.Feed != nil),
	)
}

// Close stops the feed and every component, then releases backend and
// storage connections.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil
	return a.closeResources()
}

// closeResources runs closers in reverse order of registration.
func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
