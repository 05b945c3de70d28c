package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/server/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve datasets read-only over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := app.cfg.Server.Listen
		if cmd.Flags().Changed("listen") {
			addr, _ = cmd.Flags().GetString("listen")
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewServer(app.db, app.metrics).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			slog.Info("geovec: serving", "addr", addr, "data_dir", app.cfg.Storage.DataDir)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		slog.Info("geovec: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}
