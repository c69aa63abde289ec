package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/pipeline"
	"github.com/sells-group/venue-enrich/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  "Serves GET / to run a batch, /ping and /ready probes, and /stats. A cron expression in the config schedules unattended batches.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRuntime(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Server.Cron != "" {
			c := cron.New()
			_, err := c.AddFunc(cfg.Server.Cron, func() {
				summary, err := env.Runner.Run(context.Background(), pipeline.Options{})
				if err != nil {
					zap.L().Error("scheduled batch failed", zap.Error(err))
					return
				}
				zap.L().Info("scheduled batch finished",
					zap.String("run_id", summary.RunID),
					zap.Int("processed", summary.Processed),
					zap.String("halted", summary.Halted))
			})
			if err != nil {
				return eris.Wrapf(err, "parse cron schedule %q", cfg.Server.Cron)
			}
			c.Start()
			defer c.Stop()
			zap.L().Info("batch schedule active", zap.String("cron", cfg.Server.Cron))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(env.Runner, env.Store, cfg.Store.Driver, cfg.Store.Table).Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
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
