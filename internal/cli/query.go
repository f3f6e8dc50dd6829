package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/bridge"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Fetch the current snapshot once",
	Long:  `Authenticates, fetches prices and usage once and prints the merged snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		b := bridge.New(cfg, logger)
		snap, err := b.Once(ctx)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return PrintJSON(snap)
		}

		PrintTable(snap)
		return nil
	},
}
