package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/config"
	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/logging"
	"github.com/blackwell-systems/pkgretain/internal/store"
)

// env is what every journal command works with.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	path    string
	factory *store.Factory
	journal *journal.Journal
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}

	if journalPath != "" {
		cfg.Journal.Path = journalPath
	}
	if backendName != "" {
		cfg.Journal.Backend = backendName
	}
	if logLevelName != "" {
		cfg.Log.Level = logLevelName
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// loadEnv builds the logger, store factory and journal from configuration.
func loadEnv(cmd *cobra.Command, opts ...journal.Option) (*env, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)

	path, err := cfg.JournalPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	backend, err := store.ParseBackend(cfg.Journal.Backend)
	if err != nil {
		return nil, err
	}
	factory, err := store.NewFactory(store.Options{
		Backend:     backend,
		Path:        path,
		LockTimeout: cfg.Journal.LockTimeout,
	})
	if err != nil {
		return nil, err
	}

	opts = append([]journal.Option{journal.WithExpiryPolicy(journal.ExpiryPolicy{
		MaxLockAge:    cfg.Retention.MaxLockAge,
		CheckLiveness: cfg.Retention.CheckLiveness,
	})}, opts...)

	return &env{
		cfg:     cfg,
		log:     logger,
		path:    path,
		factory: factory,
		journal: journal.New(factory, logger, opts...),
	}, nil
}

// commandContext returns the command's context, or Background when the
// command is run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseIdentity validates the <package-id> <version> arguments.
func parseIdentity(id, version string) (journal.PackageIdentity, error) {
	pkg, err := journal.NewPackageIdentity(id, version)
	if err != nil {
		return journal.PackageIdentity{}, fmt.Errorf("%w (usage: <package-id> <version>)", err)
	}
	return pkg, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	return dataFile("watch.pid")
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	return dataFile("watch.log")
}

func dataFile(name string) (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pkgretain directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}
