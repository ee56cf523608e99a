package main

import (
	"context"
	"errors"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"
	"github.com/appetiteclub/stand/services/stand/internal/backend"
	"github.com/appetiteclub/stand/services/stand/internal/live"
	"github.com/appetiteclub/stand/services/stand/internal/menu"
	"github.com/appetiteclub/stand/services/stand/internal/order"
	"github.com/appetiteclub/stand/services/stand/internal/undo"
)

const (
	appNamespace = "STAND"
	appName      = "stand"
	appVersion   = "0.1.0"
)

func main() {
	cfg, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		stdlog.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := cfg.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	store, err := backend.NewStore(cfg, logger)
	if err != nil {
		stdlog.Fatalf("%s(%s) cannot create document store: %v", appName, appVersion, err)
	}

	window, err := backend.NewUndo(cfg, logger)
	if err != nil {
		stdlog.Fatalf("%s(%s) cannot create undo window: %v", appName, appVersion, err)
	}

	provider := menu.NewProvider(store, logger)
	views := live.NewSet(store, provider, logger)

	submitter := order.NewSubmitter(store, logger)
	cashier := order.NewCashier(provider, submitter, logger,
		order.WithDraftTTL(cfg.GetDurationOrDef("drafts.ttl", order.DefaultDraftTTL)),
	)
	completer := order.NewCompleter(store, window, logger,
		order.WithUndoWindow(cfg.GetDurationOrDef("undo.window", undo.DefaultWindow)),
		order.WithCategoryLookup(views.Kitchen),
	)
	reconciler := order.NewReconciler(store, logger)

	menuHandler := menu.NewHandler(provider, logger)
	orderHandler := order.NewHandler(order.HandlerDeps{
		Cashier:    cashier,
		Completer:  completer,
		Reconciler: reconciler,
	}, logger)
	liveHandler := live.NewHandler(views, store, provider, logger)

	lifecycles := []any{
		store,
		window,
		provider,
	}

	if cfg.GetBoolOrFalse("seeding.demo") {
		logger.Info("Demo seeding enabled")
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStart: func(ctx context.Context) error {
				tracker := store.SeedTracker()
				if err := menu.ApplyDemoSeeds(ctx, store, tracker, logger); err != nil {
					return err
				}
				return order.ApplyDemoSeeds(ctx, store, tracker, logger)
			},
		})
	}

	lifecycles = append(lifecycles,
		views,
		cashier,
		reconcileLoop(reconciler, cfg.GetDurationOrDef("reconcile.interval", 0)),
	)

	// SSE streams stay open, so the request timeout is off.
	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:         logger,
		DisableTimeout: true,
	})
	if cfg.GetBoolOrFalse("web.internalonly") {
		stack = append(stack, middleware.InternalOnly())
	}

	ms := apt.NewMicro(
		apt.WithConfig(cfg),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", menuHandler, orderHandler, liveHandler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(appName),
	)

	logger.Infof("Starting %s(%s) with %s store", appName, appVersion, store.Backend())

	if err := ms.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stdlog.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

// reconcileLoop runs the reconciler in the background while the service is up.
func reconcileLoop(r *order.Reconciler, interval time.Duration) apt.LifecycleHooks {
	if interval <= 0 {
		return apt.LifecycleHooks{}
	}
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	return apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			loopCtx, c := context.WithCancel(context.WithoutCancel(ctx))
			cancel = c
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Loop(loopCtx, interval)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			return nil
		},
	}
}
