package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkantrust/vending-machine/backend/handlers"
	"github.com/arkantrust/vending-machine/backend/web"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and browser client",
		Long: `Start the vending machine server.

Examples:
  vending serve
  vending serve --port 5000
  VENDING_STORAGE_DRIVER=bolt vending serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetFlags(log.LstdFlags | log.Lshortfile)

			cfg, machine, closeStore, err := openMachine()
			if err != nil {
				return err
			}
			defer closeStore()

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			h := handlers.New(machine)
			mux := http.NewServeMux()
			h.Register(mux)
			mux.Handle("GET /", web.Handler())

			srv := &http.Server{
				Addr: fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: handlers.Chain(mux,
					handlers.Logging,
					handlers.Recover,
					handlers.CORS(cfg.Server.AllowedOrigin),
				),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      15 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s (storage: %s)", srv.Addr, cfg.Storage.Driver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
				log.Println("shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides config)")
	return cmd
}
