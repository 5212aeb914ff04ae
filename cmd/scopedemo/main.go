// Command scopedemo exercises perfscope: it records a concurrent synthetic
// workload or serves HTTP requests, and exports the resulting scope trees.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/perfscope"
	"github.com/itsneelabh/perfscope/otelexport"
)

var rootCmd = &cobra.Command{
	Use:           "scopedemo",
	Short:         "Record and export perfscope timing trees",
	Long:          `scopedemo runs a synthetic workload or an HTTP server under perfscope and exports the recorded scope trees to stdout or an OTLP collector.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = perfscope.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().String("config", "", "configuration file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().Bool("enabled", true, "record scopes")
	rootCmd.PersistentFlags().String("exporter", "", "exporter (none|stdout|otlp)")
	rootCmd.PersistentFlags().String("endpoint", "", "OTLP gRPC collector endpoint")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig builds the configuration from the environment, the optional
// config file and any flags set explicitly, then initializes perfscope.
func loadConfig(cmd *cobra.Command) (*perfscope.Config, error) {
	flags := cmd.Flags()

	var opts []perfscope.Option
	if path, _ := flags.GetString("config"); path != "" {
		opts = append(opts, perfscope.WithConfigFile(path))
	}
	if flags.Changed("enabled") || !flags.Changed("config") {
		enabled, _ := flags.GetBool("enabled")
		opts = append(opts, perfscope.WithEnabled(enabled))
	}
	if exporter, _ := flags.GetString("exporter"); exporter != "" {
		opts = append(opts, perfscope.WithExporter(exporter))
	}
	if endpoint, _ := flags.GetString("endpoint"); endpoint != "" {
		opts = append(opts, perfscope.WithEndpoint(endpoint))
	}

	cfg, err := perfscope.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := perfscope.Initialize(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPipeline loads the configuration and builds the export pipeline.
func newPipeline(cmd *cobra.Command) (*perfscope.Config, *otelexport.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := otelexport.NewPipeline(cmd.Context(), *cfg, otelexport.WithWriter(cmd.OutOrStdout()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create export pipeline: %w", err)
	}
	return cfg, pipeline, nil
}
