package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/canonical"
	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
	"github.com/jmcleod/certichain/internal/config"
	"github.com/jmcleod/certichain/keyregistry"
	"github.com/jmcleod/certichain/service"
	"github.com/jmcleod/certichain/storage"
	bboltstorage "github.com/jmcleod/certichain/storage/bbolt"
	"github.com/jmcleod/certichain/storage/memory"
)

// app holds the components one command invocation works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     storage.Repository
	registry *keyregistry.Registry
	svc      *service.Service
	closer   io.Closer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, usageError(err)
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	a := &app{cfg: cfg, logger: logger}
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		a.repo = memory.NewRepository()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.Storage.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open certificate storage: %w", err)
		}
		a.repo = repo
		a.closer = repo
	}

	a.registry = keyregistry.New(a.repo, keyregistry.WithLogger(logger))
	a.svc = service.New(
		certificate.NewRepositoryStore(a.repo, certificate.WithLogger(logger)),
		a.registry,
		custody.NewSoftwareCustody(custody.WithKeyBits(cfg.Keys.Bits)),
		service.WithLogger(logger),
		service.WithStrictKeyRegistry(cfg.Verification.StrictKeyRegistry),
		service.WithBaseURL(cfg.Verification.BaseURL),
	)
	return a, nil
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return classify(fn(a))
}

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// classify maps input errors to the usage exit code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	switch {
	case errors.Is(err, canonical.ErrValidation),
		errors.Is(err, certificate.ErrNotFound),
		errors.Is(err, certificate.ErrAlreadyRevoked),
		errors.Is(err, certificate.ErrInvalidAction),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, keyregistry.ErrNotFound),
		errors.Is(err, keyregistry.ErrRetired),
		errors.Is(err, service.ErrForbidden):
		return usageError(err)
	}
	return err
}
