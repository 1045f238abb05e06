package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/config"
	"github.com/maxiofs/guardctl/internal/diff"
	"github.com/maxiofs/guardctl/internal/logging"
	"github.com/maxiofs/guardctl/internal/metrics"
	"github.com/maxiofs/guardctl/internal/pipeline"
	"github.com/maxiofs/guardctl/internal/precondition"
	"github.com/maxiofs/guardctl/internal/settings"
	"github.com/maxiofs/guardctl/internal/snapshot"
	"github.com/maxiofs/guardctl/internal/transfer"
	"github.com/maxiofs/guardctl/internal/validation"
)

// App holds everything a command needs once configuration is loaded
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	RunID     string
	Catalog   *catalog.Catalog
	Settings  *settings.SQLiteStore
	Snapshots snapshot.Store
	Backups   *backup.Store
	Audit     *audit.Manager
	Metrics   *metrics.Recorder
	Renderer  *diff.Renderer
	Runner    *pipeline.Runner
	Exporter  *transfer.Exporter
	Importer  *transfer.Importer

	closers []io.Closer
}

func (c *Command) openApp(cmd *cobra.Command) (*App, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger, logCloser, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Out:    c.errOut,
		Fields: logrus.Fields{"run_id": runID},
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		RunID:   runID,
		Catalog: c.catalog,
		closers: []io.Closer{logCloser},
	}

	gate := precondition.NewGate(logger)
	if err := gate.Check(precondition.Checks{
		StorePath:       cfg.Store.Path,
		CreateIfMissing: cfg.Store.CreateIfMissing,
		DataDir:         cfg.DataDir,
		MinFreeMB:       cfg.Precondition.MinFreeMB,
	}); err != nil {
		app.Close()
		return nil, err
	}

	store, err := settings.OpenSQLite(cfg.Store.Path, cfg.Store.Table, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Settings = store
	app.closers = append(app.closers, store)

	snaps, err := snapshot.Open(snapshot.Options{
		Engine:     snapshot.Engine(cfg.Snapshots.Engine),
		DataDir:    cfg.DataDir,
		SyncWrites: cfg.Snapshots.SyncWrites,
		Logger:     logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open backup store: %w", err)
	}
	app.Snapshots = snaps
	app.closers = append(app.closers, snaps)
	app.Backups = backup.NewStore(snaps, store, app.Catalog, logger)

	if cfg.Audit.Enable {
		auditStore, err := audit.NewSQLiteStore(context.Background(), cfg.Audit.DBPath, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open audit trail: %w", err)
		}
		app.Audit = audit.NewManager(auditStore, runID, cfg.Origin, logger)
		app.closers = append(app.closers, app.Audit)
	}

	app.Metrics = metrics.NewRecorder(cfg.Metrics.Textfile, logger)
	app.Renderer = diff.NewRenderer(cfg.Preview.Truncate, c.styled(cfg.Preview.Color))
	app.Exporter = transfer.NewExporter(store, app.Catalog, cfg.Origin, logger)
	app.Importer = transfer.NewImporter(app.Catalog, logger)

	confirmer := c.confirmer
	if confirmer == nil {
		confirmer = &pipeline.TerminalConfirmer{
			In:          c.in,
			Out:         c.errOut,
			Interactive: func() bool { return isTerminal(c.in) },
		}
	}

	app.Runner = pipeline.NewRunner(pipeline.Deps{
		Store:     store,
		Validator: validation.NewValidator(app.Catalog),
		Renderer:  app.Renderer,
		Backups:   app.Backups,
		Confirmer: confirmer,
		Audit:     app.Audit,
		Metrics:   app.Metrics,
		Out:       c.out,
		Logger:    logger,
	})

	logger.WithFields(logrus.Fields{
		"store":    cfg.Store.Path,
		"data_dir": cfg.DataDir,
		"engine":   cfg.Snapshots.Engine,
		"command":  cmd.CommandPath(),
	}).Debug("guardctl initialized")

	return app, nil
}

// styled decides whether previews are coloured
func (c *Command) styled(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(c.out)
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
