package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/api"
	"github.com/mandi-labs/onboard-cli/internal/monitoring"
	"github.com/mandi-labs/onboard-cli/pkg/notion"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the onboarding HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Background session health sweep. The review backlog count is
		// only meaningful when a Notion board is configured to drain it.
		syncTarget := ""
		if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
			syncTarget = notion.SyncTarget
		}
		sweeper := monitoring.NewSweeper(
			monitoring.NewCollector(env.Store, syncTarget),
			monitoring.NewAlerter(cfg.Monitor),
			cfg.Monitor,
		)
		go sweeper.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.New(env.Engine, env.Store).Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
