package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chessinsight/internal/app"
	"chessinsight/internal/config"
	"chessinsight/internal/obslog"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $CHESSINSIGHT_CONFIG or "+config.DefaultPath+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "chessinsight:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := obslog.New(obslog.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Caller: true,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()
	application.Start(ctx)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("chessinsight listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("config", cfg.Path),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.URL != ""),
	)
	if application.AdminTokenCreated() {
		log.Info("generated admin token", zap.String("token", application.AdminToken()))
	}
	log.Info("refresh endpoint", zap.String("url", refreshURL(cfg.ListenAddr, application.AdminToken())))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("chessinsight stopped")
	return nil
}

func refreshURL(listenAddr, token string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Sprintf("http://%s/api/users/{id}/refresh?token=%s", listenAddr, token)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s/api/users/{id}/refresh?token=%s", host, port, token)
}
