package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abdulgalimov/unique-market/internal/notify"
	"github.com/abdulgalimov/unique-market/internal/server"
	"github.com/abdulgalimov/unique-market/internal/server/handler"
	"github.com/abdulgalimov/unique-market/internal/server/ws"
)

// shutdownTimeout bounds the HTTP server drain on shutdown.
const shutdownTimeout = 10 * time.Second

// Serve starts the API server, WebSocket hub, and notification watcher and
// blocks until the context is cancelled or a component fails.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	wsHub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		err := wsHub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if deps.Notifier != nil {
		watcher := notify.NewWatcher(deps.Bus, deps.Notifier)
		g.Go(func() error {
			err := watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(a.cfg.Mode),
			Orders: handler.NewOrderHandler(deps.Engine),
			Events: handler.NewEventHandler(deps.Bus),
		}
		if deps.LocalRegistry != nil {
			handlers.Dev = handler.NewDevHandler(deps.LocalRegistry, deps.Ledger, deps.Operator)
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, handlers, wsHub, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return ctx.Err()
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	return g.Wait()
}
