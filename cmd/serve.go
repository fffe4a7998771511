package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"faimport/internal/api"
	"faimport/internal/logger"
	"faimport/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import screens, the JSON API and /metrics",
	Long: `Start the HTTP server. All screens are reached through "/?action=...":

  dashboard, emails, upload, directory, review, invoice-details,
  mark-processed, statistics, cleanup, api

The user is taken from the X-FA-User header set by FrontAccounting, or
DEFAULT_ACTOR when the header is missing.`,
	Example: `  faimport serve
  faimport serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "Time allowed for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("serve")

	ctx, cancel := signalContext(0)
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	grace, _ := cmd.Flags().GetDuration("shutdown-timeout")

	if a.cfg.UploadDir != "" {
		if err := os.MkdirAll(a.cfg.UploadDir, 0o750); err != nil {
			return err
		}
	}

	gin.SetMode(gin.ReleaseMode)
	ctl := api.NewController(a.repo, a.pipeline, a.sources, api.Options{
		DefaultActor: models.Actor(a.cfg.DefaultActor),
		UploadDir:    a.cfg.UploadDir,
		CleanupAge:   a.cfg.CleanupAge,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, done := context.WithTimeout(context.Background(), grace)
	defer done()
	return srv.Shutdown(shutdownCtx)
}
