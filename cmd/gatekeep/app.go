package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/backup"
	"github.com/Cyclone1070/gatekeep/internal/codeedit"
	"github.com/Cyclone1070/gatekeep/internal/config"
	"github.com/Cyclone1070/gatekeep/internal/dispatch"
	"github.com/Cyclone1070/gatekeep/internal/execution"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/host"
	"github.com/Cyclone1070/gatekeep/internal/logutil"
	"github.com/Cyclone1070/gatekeep/internal/pathlock"
	"github.com/Cyclone1070/gatekeep/internal/policy/command"
	pathpolicy "github.com/Cyclone1070/gatekeep/internal/policy/path"
	gatefs "github.com/Cyclone1070/gatekeep/internal/service/fs"
	"github.com/rs/zerolog"
)

// app holds every component of a running gateway.
type app struct {
	cfg    *config.Config
	root   string
	logger zerolog.Logger

	paths      *pathpolicy.Policy
	commands   *command.Policy
	backups    *backup.Manager
	audit      *audit.Log
	files      *fileops.Engine
	host       *host.Local
	code       *codeedit.Engine
	exec       *execution.Engine
	dispatcher *dispatch.Dispatcher

	closers []io.Closer
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = loader.LoadFrom(opts.configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.root != "" {
		cfg.ProjectRoot = opts.root
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectRoot returns the canonical project root named by cfg.
func projectRoot(cfg *config.Config) (string, error) {
	root := cfg.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		root = wd
	}
	return pathpolicy.CanonicaliseRoot(root)
}

// underRoot resolves a configured path against the project root.
func underRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func newApp(opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	root, err := projectRoot(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, root: root}
	logger, logCloser, err := logutil.Open(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closers = append(a.closers, logCloser)

	rules, err := loadRules(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, err := audit.OpenSink(cfg.Audit.Sink, underRoot(root, cfg.Audit.Path))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	a.audit = audit.New(sink, logger)
	a.closers = append(a.closers, a.audit)

	fsys := gatefs.NewOSFileSystem()
	backupDir := underRoot(root, cfg.Backup.Dir)
	a.paths = pathpolicy.New(root, fsys, cfg.Policy.DeniedPaths, backupDir)
	a.commands = command.New(rules)
	a.backups = backup.NewManager(root, backupDir, fsys, backup.Options{
		MaxGenerations: cfg.Backup.MaxGenerations,
		Retention:      time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour,
	}, logger)
	a.files = fileops.New(a.paths, a.backups, fsys, a.audit, pathlock.New(), cfg.Files.MaxFileSize, logger)
	a.host = host.NewLocal(root, fsys, logger)
	a.code = codeedit.New(a.files, a.host, a.audit, cfg.Files.DeleteConfirmationThreshold, logger)
	a.exec = execution.New(a.commands, a.paths, a.audit, a.host, cfg.Exec, logger)

	a.dispatcher = dispatch.New(a.audit, cfg.Server, logger)
	a.dispatcher.RegisterEngines(dispatch.Engines{
		Paths:    a.paths,
		Commands: a.commands,
		Files:    a.files,
		Code:     a.code,
		Exec:     a.exec,
	})

	logger.Debug().Str("root", root).Str("backupDir", backupDir).Msg("gateway initialised")
	return a, nil
}

// Shutdown stops running processes, then closes the audit log and logger.
func (a *app) Shutdown(ctx context.Context) error {
	var errs []error
	if a.exec != nil {
		if err := a.exec.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop processes: %w", err))
		}
	}
	errs = append(errs, a.Close())
	return errors.Join(errs...)
}

// Close releases the audit sink and log file, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
