package commands

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

	"github.com/AnirudhanSS/kanban-app-sub000/internal/printer"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/server"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/session"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board collaboration server",
	Long: `Starts the HTTP and WebSocket server, connects to Redis for
coordination and fan-out, and opens the board database. Multiple
instances sharing one Redis namespace behave as a single logical
server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return printer.Error("Failed to build logger", err.Error(), nil)
	}
	defer logger.Sync()

	client, err := newCollabClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx); err != nil {
		return printer.Error("Redis unreachable", err.Error(), []string{
			"Start Redis, or point redis_url at a reachable instance",
		})
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return printer.Error("Failed to open database", err.Error(), nil)
	}

	svc := session.NewService(st, client, cfg.Collab.LockTTL(), logger)
	ws := session.NewHandler(svc, cfg.Collab.PresenceTTL(), logger)
	hub := session.NewHub(ws, client, logger)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(svc, ws, cfg.Collab.TicketTTL(), logger).Router(),
	}

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event hub stopped", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("listen", cfg.Listen),
		zap.String("instance", cfg.Instance),
		zap.String("database", cfg.Database.Path))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down HTTP server", zap.Error(err))
	}
	if err := ws.Close(); err != nil {
		logger.Error("failed to close websocket sessions", zap.Error(err))
	}
	<-hubDone

	if sqlDB, err := st.DB().DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
