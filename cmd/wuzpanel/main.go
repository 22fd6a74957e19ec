package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wuzpanel/wuzpanel/config"
	"github.com/wuzpanel/wuzpanel/internal/adminapi"
	"github.com/wuzpanel/wuzpanel/internal/app"
	"github.com/wuzpanel/wuzpanel/internal/webserver"
)

var (
	confFile    = flag.String("c", "wuzpanel.yml", "config file")
	showVersion = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("wuzpanel", version)
		return
	}

	cfg, err := config.LoadConfig(*confFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "init failed:", err)
		os.Exit(1)
	}
	defer application.Release()

	webserver.Init(application)
	adminapi.Register()

	errCh := make(chan error, 1)
	go func() {
		errCh <- webserver.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			zap.S().Errorf("webserver stopped: %s", err)
			os.Exit(1)
		}
	case sig := <-quit:
		zap.S().Infof("received signal %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webserver.Shutdown(ctx); err != nil {
			zap.S().Errorf("shutdown error: %s", err)
		}
	}
}
