package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/config"
	"metadata-enricher/internal/credentials"
	"metadata-enricher/internal/enrichment"
)

// Options customizes the command tree, mostly for tests.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Store replaces the secret backend selected by SECRET_BACKEND.
	Store credentials.Store
}

// Run executes the CLI and returns the process exit code: 0 whenever an
// invocation reached a terminal status, 1 when inputs could not be read
// or the process could not be configured.
func Run(args []string) int {
	cmd := NewRootCommand(Options{Stdout: os.Stdout, Stderr: os.Stderr})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// NewRootCommand builds the metadata-enricher command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var envFile string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "metadata-enricher",
		Short:         "Fetch and normalize external asset metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				err = fmt.Errorf("failed to load env file: %w", err)
				fmt.Fprintf(opts.Stderr, "error: %v\n", err)
				return err
			}
			cfg = config.Load()
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(opts.Stderr, "error: %v\n", err)
				return err
			}
			logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default .env when present)")

	root.AddCommand(newEnrichCommand(opts, func() *config.Config { return cfg }))
	return root
}

type enrichFlags struct {
	configPath    string
	fileName      string
	correlationID string
	assetID       string
	metricsOut    string
}

func newEnrichCommand(opts Options, processConfig func() *config.Config) *cobra.Command {
	var flags enrichFlags

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich one asset and print the result as JSON",
		Example: `  metadata-enricher enrich --config acme.json --file /ingest/X123.mxf
  metadata-enricher enrich --config acme.yaml --correlation-id X123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runEnrich(cmd.Context(), opts, processConfig(), flags)
			if err != nil {
				fmt.Fprintf(opts.Stderr, "error: %v\n", err)
			}
			logging.MustSync()
			return err
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Invocation config file (JSON or YAML)")
	cmd.Flags().StringVarP(&flags.fileName, "file", "f", "", "Asset file name the correlation id is extracted from")
	cmd.Flags().StringVar(&flags.correlationID, "correlation-id", "", "Use this correlation id instead of extracting one")
	cmd.Flags().StringVar(&flags.assetID, "asset-id", "", "Caller asset id, for logs")
	cmd.Flags().StringVar(&flags.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runEnrich(ctx context.Context, opts Options, procCfg *config.Config, flags enrichFlags) error {
	data, err := os.ReadFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	invocationCfg, err := enrichment.ParseConfig(data, flags.configPath)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, procCfg, opts.Store)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	result := app.Facade.Enrich(ctx, invocationCfg, enrichment.Input{
		FileName:      flags.fileName,
		CorrelationID: flags.correlationID,
		AssetID:       flags.assetID,
	})

	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if flags.metricsOut != "" && app.Registry != nil {
		if err := prometheus.WriteToTextfile(flags.metricsOut, app.Registry); err != nil {
			app.Logger.Warn("Failed to write metrics", logging.Err(err))
		}
	}
	return nil
}
