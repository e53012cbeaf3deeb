package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pdfchat/internal/bootstrap"
	"pdfchat/internal/terminal"
	httptransport "pdfchat/internal/transport/http"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "pdfchat",
		Short:        "chat with your PDFs through a remote question-answering service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (defaults to $CONFIG_FILE or configs/config.toml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the chat screen over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configPath)
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "chat from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminal(cmd.Context(), configPath)
		},
	}

	rootCmd.AddCommand(serveCmd, chatCmd)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, configPath string) error {
	app, err := bootstrap.New(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("close resources failed", zap.Error(err))
		}
	}()

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	app.Logger.Info("server stopped")
	return nil
}

func runTerminal(ctx context.Context, configPath string) error {
	app, err := bootstrap.New(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	return terminal.New(app.Screens, "terminal", os.Stdin, os.Stdout).Run(ctx)
}
