// Package main provides the entry point for the hvmigrate CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hvmigrate/hvmigrate/internal/config"
	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/hvmigrate/hvmigrate/internal/metrics"
	"github.com/hvmigrate/hvmigrate/internal/workflow"
)

var (
	cfgFile string
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hvmigrate",
	Short: "hvmigrate - hypervisor reinstall automation",
	Long: `hvmigrate runs one step of the hypervisor reinstall workflow on every
hypervisor listed in the hypervisors file, in parallel, and reports progress
to each hypervisor's ticket.

Steps:

` + workflow.DefaultRegistry.Help(),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFile+")")

	flags := []struct {
		name, usage, defaultValue string
	}{
		{"hypervisors-file", "file with one \"<hostname> <ticket>\" line per hypervisor", "etc/hypervisors.txt"},
		{"creds-file", "YAML credentials file", "etc/creds.yaml"},
		{"step", "workflow step to run (setup, pre_drain, pre_reinstall, post_reinstall, noops)", ""},
		{"log-file", "also write logs to this file", ""},
		{"metrics-file", "write Prometheus metrics to this file when the run ends", ""},
	}
	for _, f := range flags {
		rootCmd.Flags().String(f.name, f.defaultValue, f.usage)
	}
	rootCmd.Flags().Int("max-workers", 0, "maximum hypervisors processed at once (0 means all)")
	rootCmd.Flags().Bool("serial", false, "process hypervisors one at a time, in file order")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")

	if err := rootCmd.MarkFlagRequired("step"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mark step flag required: %v\n", err)
	}

	bindings := map[string]string{
		"HYPERVISORS_FILE": "hypervisors-file",
		"CREDS_FILE":       "creds-file",
		"LOG_FILE":         "log-file",
		"METRICS_FILE":     "metrics-file",
		"MAX_WORKERS":      "max-workers",
		"SERIAL":           "serial",
		"DEBUG":            "debug",
	}
	for env, flag := range bindings {
		if err := viper.BindPFlag(env, rootCmd.Flags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to bind flag %s to env %s: %v\n", flag, env, err)
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Debug)
	if cfg.LogFile != "" {
		log, err = logger.NewWithFile(cfg.Debug, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	defer log.Close()

	log.Infof("hvmigrate version %s", version)

	collector := metrics.New()
	coord, err := workflow.New(cfg,
		viper.GetString("CREDS_FILE"),
		viper.GetString("HYPERVISORS_FILE"),
		log,
		workflow.WithMetrics(collector),
	)
	if err != nil {
		log.Errorf("Failed to start: %v", err)
		return err
	}
	log.Infof("Run ID: %s", coord.RunID())

	step, _ := cmd.Flags().GetString("step")
	if _, err := coord.Run(context.Background(), step); err != nil {
		log.Errorf("Step %s not started: %v", step, err)
		return err
	}

	if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warningf("Failed to write metrics: %v", err)
	}
	return nil
}
