package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/internal/queue"
	"github.com/shouni/go-comic-kit/internal/server"
)

const shutdownTimeout = 10 * time.Second

// serveCmd は、ジョブを受け付けてタスクキューへ送る HTTP サーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "ジョブ受付の HTTP API を起動するのだ。",
	RunE:  serveCommand,
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := config.LoadConfig()

	conn, err := queue.Dial(ctx, cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	jobs, err := queue.NewPublisher(conn, cfg.TaskQueue)
	if err != nil {
		return err
	}
	defer jobs.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(jobs),
		ReadHeaderTimeout: cfg.HTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP サーバーを起動したのだ！", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP サーバーが停止したのだ: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("HTTP サーバーを停止するのだ")
	return srv.Shutdown(shutdownCtx)
}
