package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edufeq03/app-ponto-sub000/api"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "HTTP server port (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the HTTP API, the live balance monitor and, when enabled in the
config, the settlement scheduler. Stops gracefully on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("port"); v != "" {
		cfg.Server.Port = v
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	interval, err := cfg.SchedulerInterval()
	if err != nil {
		return err
	}

	gw, closeGateway, err := openGateway(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	handler := api.NewHandler(gw, loc)
	defer handler.Monitor.Close()

	handler.Scheduler.Enabled = cfg.Scheduler.Enabled
	handler.Scheduler.CheckInterval = interval
	handler.Scheduler.Start()
	defer handler.Scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%s (db=%s, tz=%s)", cfg.Server.Port, cfg.Database.Driver, loc)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("Server stopped")
	return nil
}
