package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/api"
	"github.com/mateusz-orawczak/pstryk-bridge/internal/bridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge and the local API server",
	Long:  `Runs the polling and push tasks until interrupted, serving the merged snapshot on a local HTTP endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b := bridge.New(cfg, logger)

		runErr := make(chan error, 1)
		go func() {
			runErr <- b.Run(ctx)
		}()

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := api.NewServer(b, addr)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("bridge running", "addr", addr)

		err = <-runErr

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)

		return err
	},
}
