package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/staffing-awards/cmd/worker"
	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/logger"
	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	cfg     config.Config
	rootCmd = &cobra.Command{
		Use:   "awards",
		Short: "World Staffing Awards API and CRM sync",
		// every subcommand needs config, the logger and metrics
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Encoding)
			metrics.MustRegister(prometheus.DefaultRegisterer)
			return nil
		},
		SilenceUsage: true,
	}
)

func Execute() {
	defer func() { _ = logger.Log.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(worker.NewWorkerCmd(func() config.Config { return cfg }))
}
