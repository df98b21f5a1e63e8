package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	service "github.com/okian/resonance/internal/app"
	"github.com/okian/resonance/internal/config"
	"github.com/okian/resonance/pkg/logger"
	"github.com/okian/resonance/pkg/metrics"
)

// cli holds the persistent flags and the configuration they resolve to.
type cli struct {
	configPath string
	dataDir    string
	backend    string
	jsonOut    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "resonance",
		Short:        "Match incoming text against registered interest fingerprints",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory holding the file store")
	flags.StringVar(&c.backend, "backend", "", "store backend: file or sqlite")
	flags.BoolVar(&c.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		serveCmd(c),
		registerCmd(c),
		archiveCmd(c),
		listCmd(c),
		showCmd(c),
		pulseCmd(c),
		convergencesCmd(c),
		loadgenCmd(c),
	)
	return root
}

// setup loads .env, layers configuration and initialises logging and metrics.
func (c *cli) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.backend != "" {
		cfg.StoreBackend = c.backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
	)

	c.cfg = cfg
	return nil
}

// withService runs fn against a started service that does not poll, then
// stops it.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	svc := service.New(
		service.WithConfig(c.cfg),
		service.WithAutostartPoller(false),
		service.WithLogger(logger.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	err := fn(ctx, svc)
	if stopErr := svc.Stop(ctx); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	return err
}

func (c *cli) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), c.jsonOut)
}
