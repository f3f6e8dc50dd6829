package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/config"
)

var (
	cfgFile  string
	debugLog bool
	rootCmd  = &cobra.Command{
		Use:   "pstryk-bridge",
		Short: "Pstryk energy data bridge",
		Long:  `Polls the Pstryk electricity API and mirrors live usage updates into one merged snapshot of prices, usage and cost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryCmd.RunE(cmd, args)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pstryk-bridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)

	rootCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return cfg, logger, nil
}
