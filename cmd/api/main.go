package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-invoice/backend/internal/app"
	"github.com/zhouzirui/z-invoice/backend/internal/config"
	"github.com/zhouzirui/z-invoice/backend/internal/handler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:   "z-invoice",
		Short: "Conversational invoice drafting service",
		Long: `z-invoice drafts invoices through a chat conversation: it collects the
client and product lines turn by turn and issues the document at the end.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve)
	return root
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Load .env file
			if err := godotenv.Load(); err != nil {
				log.Printf("warning: failed to load .env file: %v", err)
				log.Println("continuing with system environment variables only")
			}

			cfg, err := config.Load()
			if err != nil {
				log.Printf("failed to load configuration: %v", err)
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			services, err := app.Build(ctx, cfg)
			if err != nil {
				log.Printf("failed to initialize services: %v", err)
				return err
			}
			defer func() {
				if err := services.Close(); err != nil {
					log.Printf("warning: failed to close session store: %v", err)
				}
			}()

			router := handler.NewRouter(services.Engine, services.Channels, cfg.Server.AllowedOrigins)
			return startServer(ctx, cfg.Server, router)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PORT)")
	return cmd
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Invoice backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
		return err
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
