package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiftwatch/internal/engine"
	auditinadapter "shiftwatch/internal/modules/audit/adapter/in"
	auditoutadapter "shiftwatch/internal/modules/audit/adapter/out"
	auditservice "shiftwatch/internal/modules/audit/service"
	auditusecase "shiftwatch/internal/modules/audit/usecase"
	depoutadapter "shiftwatch/internal/modules/departure/adapter/out"
	depusecase "shiftwatch/internal/modules/departure/usecase"
	shiftinadapter "shiftwatch/internal/modules/shift/adapter/in"
	shiftoutadapter "shiftwatch/internal/modules/shift/adapter/out"
	shiftservice "shiftwatch/internal/modules/shift/service"
	shiftusecase "shiftwatch/internal/modules/shift/usecase"
	watchinadapter "shiftwatch/internal/modules/watch/adapter/in"
	watchoutadapter "shiftwatch/internal/modules/watch/adapter/out"
	watchservice "shiftwatch/internal/modules/watch/service"
	watchusecase "shiftwatch/internal/modules/watch/usecase"
	"shiftwatch/internal/platform/clock"
	"shiftwatch/internal/platform/config"
	"shiftwatch/internal/platform/id"
	"shiftwatch/internal/platform/settings"
	"shiftwatch/internal/platform/sqlitedb"
	uiwatch "shiftwatch/internal/ui/watch"
)

// Options overrides the production collaborators; the zero value is what the
// CLI uses.
type Options struct {
	Clock     clock.Clock
	NewTicker clock.TickerFactory
	IDs       id.Generator
	Settings  settings.Provider
	Logger    *zap.Logger
}

type App struct {
	Engine   *engine.Engine
	Settings settings.Provider
	ShiftCLI shiftinadapter.CLIHandler
	AuditCLI auditinadapter.CLIHandler
	WatchCLI watchinadapter.CLIHandler
	Logger   *zap.Logger

	db *sql.DB
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = id.UUID{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := opts.Settings
	var watcher engine.SettingsWatcher
	if provider == nil {
		fp, err := settings.NewFileProvider(cfg.SettingsPath, logger.Named("settings"))
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		provider, watcher = fp, fp
	}

	db, err := sqlitedb.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	app, err := wire(ctx, cfg, db, clk, ids, provider, watcher, opts.NewTicker, logger)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return app, nil
}

func wire(
	ctx context.Context,
	cfg config.Config,
	db *sql.DB,
	clk clock.Clock,
	ids id.Generator,
	provider settings.Provider,
	watcher engine.SettingsWatcher,
	newTicker clock.TickerFactory,
	logger *zap.Logger,
) (*App, error) {
	auditStore, err := auditoutadapter.NewSQLiteAuditStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new audit store: %w", err)
	}
	auditUC := auditusecase.NewInteractor(auditservice.NewAuditService(clk, ids, auditStore), logger.Named("audit"))

	sessionStore, err := shiftoutadapter.NewSQLiteSessionStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new session store: %w", err)
	}
	shiftUC := shiftusecase.NewInteractor(
		shiftservice.NewShiftService(clk, ids, sessionStore, provider),
		shiftoutadapter.NewVaultReportStore(cfg.ReportDir),
		logger.Named("shift"),
	)

	archive, err := depoutadapter.NewSQLiteBottleArchive(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new bottle archive: %w", err)
	}
	ledger, err := depoutadapter.NewSQLiteTaskLedger(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new task ledger: %w", err)
	}
	pending, err := depoutadapter.NewSQLitePendingStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new pending departure store: %w", err)
	}
	breaks, err := watchoutadapter.NewSQLiteBreakStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new break store: %w", err)
	}
	recorder := depoutadapter.NewAuditRecorder(auditUC)
	departureUC := depusecase.NewInteractor(depusecase.Deps{
		Clock:   clk,
		IDs:     ids,
		Audit:   recorder,
		Drift:   recorder,
		Archive: archive,
		Tasks:   ledger,
		Holding: ledger,
		Pending: pending,
		Logger:  logger.Named("departure"),
	})

	watchUC := watchusecase.NewInteractor(
		watchservice.NewWatchService(clk, ids, breaks, provider),
		watchoutadapter.NewAuditRecorder(auditUC),
		logger.Named("watch"),
	)

	eng := engine.New(engine.Deps{
		Shift:     shiftUC,
		Audit:     auditUC,
		Departure: departureUC,
		Watch:     watchUC,
		Items:     ledger,
		Settings:  provider,
		Watcher:   watcher,
		Clock:     clk,
		NewTicker: newTicker,
		Logger:    logger.Named("engine"),
	})

	return &App{
		Engine:   eng,
		Settings: provider,
		ShiftCLI: shiftinadapter.NewCLIHandler(shiftUC),
		AuditCLI: auditinadapter.NewCLIHandler(auditUC),
		WatchCLI: watchinadapter.NewCLIHandler(watchUC),
		Logger:   logger,
		db:       db,
	}, nil
}

// Close waits for in-flight gesture actions, then releases the database.
func (a *App) Close() error {
	a.Engine.Close()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RunTUI drives the engine in the background while the watch screen is up.
func RunTUI(ctx context.Context, app *App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Engine.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return uiwatch.Run(gctx, app.Engine)
	})
	return g.Wait()
}
