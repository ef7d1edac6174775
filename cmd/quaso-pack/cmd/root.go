package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/quaso-pack/internal/app"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/version"
)

var (
	// configPath to the configuration YAML file; empty means <workspace>/quaso-pack.yaml.
	configPath string
	// workspace is the root holding templates/ and the output directory.
	workspace string
	// logLevel is the minimum level written to stderr.
	logLevel string
	// quiet limits logging to errors regardless of logLevel.
	quiet bool

	// rootCmd represents the base command; subcommands come from the operation registry.
	rootCmd = &cobra.Command{
		Use:           "quaso-pack",
		Short:         "Build, run and package quaso game templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}
)

// errBadLogLevel is returned for an unknown --log-level value.
var errBadLogLevel = errors.New("unknown log level")

// Execute runs the quaso-pack CLI and exits with a code naming the failed stage.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	attachOperations(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.Error(ctx, err)
		os.Exit(app.ExitCode(err))
	}
}

// setupLogger applies --log-level and --quiet to the global logger.
func setupLogger() error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%w: %w %q", app.ErrUsage, errBadLogLevel, logLevel)
	}

	logger.SetLevel(level)

	if quiet {
		logger.SetLogger(logger.Logger().Desugar().WithOptions(logger.WithLevel(zapcore.ErrorLevel)).Sugar())
	}

	return nil
}

// loadConfig reads the workspace configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWorkspace(workspace, configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup global flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to configuration file (default <workspace>/"+config.DefaultConfigFilename+")")
	flags.StringVarP(&workspace, "workspace", "w", ".", "workspace root containing the templates directory")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log errors only")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", app.ErrUsage, err)
	})
}
