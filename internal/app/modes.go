package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mattvy/chartgrid/internal/domain"
	"github.com/mattvy/chartgrid/internal/server"
	"github.com/mattvy/chartgrid/internal/server/handler"
)

// archiveLockKey guards the trade archive sweep so only one replica runs it.
const archiveLockKey = "archive:trades"

// archiveLockTTL bounds how long a crashed sweep can block the next one.
const archiveLockTTL = 10 * time.Minute

// shutdownTimeout bounds graceful HTTP shutdown and final buffer flushes.
const shutdownTimeout = 10 * time.Second

// ServeMode runs the full server: WebSocket hub, saved-layout restore, live
// trade feed, HTTP API, and the optional scheduled archive sweep. It blocks
// until the context is cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Panels:   handler.NewPanelHandler(deps.Registry, a.logger),
		Settings: handler.NewSettingsHandler(deps.Registry, a.logger),
		Profile:  handler.NewProfileHandler(deps.Profiles, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchivesHandler(deps.BlobReader, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, deps.Hub, deps.RateLimiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Hub.Run(gctx)
	})

	// Restore the saved layout (or defaults) before accepting traffic so the
	// first client sees a populated grid.
	deps.Registry.Restore(gctx)

	g.Go(func() error {
		return deps.Feed.Run(gctx)
	})

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		sched := cron.New()
		_, err := sched.AddFunc(a.cfg.Archive.Cron, func() {
			a.runArchiveSweep(gctx, deps)
		})
		if err != nil {
			return fmt.Errorf("app: archive cron %q: %w", a.cfg.Archive.Cron, err)
		}
		sched.Start()
		a.logger.Info("archive sweep scheduled",
			slog.String("cron", a.cfg.Archive.Cron),
			slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		)
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	err := g.Wait()

	deps.Feed.Close()
	deps.Registry.Close()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if ferr := deps.Profiles.Flush(flushCtx); ferr != nil {
		a.logger.Warn("final trade buffer flush failed", slog.String("error", ferr.Error()))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ArchiveMode runs a single archive sweep and exits. Useful for cron-driven
// deployments that prefer an external scheduler.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires postgres and s3 to be enabled")
	}
	return a.archiveSweep(ctx, deps)
}

// runArchiveSweep is the scheduled entry point; failures are logged rather
// than propagated so one bad sweep does not take the server down.
func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies) {
	if err := a.archiveSweep(ctx, deps); err != nil {
		a.logger.Error("archive sweep failed", slog.String("error", err.Error()))
	}
}

// archiveSweep acquires the distributed archive lock and moves trades older
// than the retention window to object storage.
func (a *App) archiveSweep(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, archiveLockKey, archiveLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Info("archive sweep skipped, another replica holds the lock")
			return nil
		}
		return fmt.Errorf("app: archive lock: %w", err)
	}
	defer unlock()

	before := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	archived, err := deps.Archiver.ArchiveTrades(ctx, before)
	if err != nil {
		return fmt.Errorf("app: archive trades: %w", err)
	}
	a.logger.Info("archive sweep complete",
		slog.Int64("archived", archived),
		slog.Time("before", before),
	)
	return nil
}
