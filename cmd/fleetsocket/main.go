// Command fleetsocket runs a FleetSocket chat relay server.
//
// Several processes may share one Redis: each persists messages to it and
// receives every room broadcast through it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/fleetsocket/store"
	"github.com/ggoodman/fleetsocket/store/memorystore"
	"github.com/ggoodman/fleetsocket/store/redisstore"
	"github.com/ggoodman/fleetsocket/wshandler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fleetsocket: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))
	slog.SetDefault(log)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	h, err := wshandler.New(st,
		wshandler.WithLogger(log),
		wshandler.WithSendQueue(cfg.SendQueue),
		wshandler.WithMaxContentLength(cfg.MaxContent),
		wshandler.WithMaxFrameBytes(cfg.MaxFrame),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("FleetSocket server listening", slog.String("addr", srv.Addr), slog.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server.shutdown.start")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		if err := h.Close(); err != nil {
			log.Error("handler.close.fail", slog.String("err", err.Error()))
		}
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg Config) (store.Store, func(), error) {
	if cfg.Store == "memory" {
		return memorystore.New(), func() {}, nil
	}
	rs, err := redisstore.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { _ = rs.Close() }, nil
}
