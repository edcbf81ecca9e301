package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/broadcast"
	"github.com/HerbHall/sentineld/internal/config"
	"github.com/HerbHall/sentineld/internal/detector"
	"github.com/HerbHall/sentineld/internal/dispatch"
	"github.com/HerbHall/sentineld/internal/ingest"
	"github.com/HerbHall/sentineld/internal/logstore"
	"github.com/HerbHall/sentineld/internal/mailer"
	"github.com/HerbHall/sentineld/internal/server"
	"github.com/HerbHall/sentineld/internal/version"
	"github.com/HerbHall/sentineld/internal/wsapi"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	addr := flag.String("addr", "", "listen address, overrides server.port from config")
	recipients := flag.String("recipients", "", "comma-separated report recipient addresses")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Short())
		os.Exit(0)
	}

	// Load configuration before the logger, so log level/format themselves
	// come from config.
	viperCfg, snap, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("sentineld starting", zap.String("version", version.Short()))
	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	cfgHolder, err := config.NewHolder(snap)
	if err != nil {
		logger.Fatal("invalid initial configuration", zap.Error(err))
	}

	logsDir := viperCfg.GetString("logs.directory")
	if logsDir == "" {
		logsDir = "logs"
	}
	logs, err := logstore.Open(logsDir)
	if err != nil {
		logger.Fatal("failed to open log store", zap.Error(err))
	}
	defer logs.Close()

	det, err := detector.New(snap.Detector, logger.Named("detector"))
	if err != nil {
		logger.Fatal("failed to construct detector", zap.Error(err))
	}

	rep, err := autoreport.New(snap.Reporter, logger.Named("autoreport"))
	if err != nil {
		logger.Fatal("failed to construct auto-reporter", zap.Error(err))
	}

	hub := broadcast.NewHub(logger.Named("broadcast"))

	var recipientList []string
	if *recipients != "" {
		recipientList = strings.Split(*recipients, ",")
	}
	mailAdapter := mailer.NewLoggingMailer(logger.Named("mailer"))
	disp := dispatch.New(rep, mailAdapter, nil, recipientList, logger.Named("dispatch"))

	coord := ingest.New(det, logs, hub, rep, disp, logger.Named("ingest"))

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go disp.Run(dispatchCtx)

	listenAddr := *addr
	if listenAddr == "" {
		port := viperCfg.GetInt("server.port")
		if port == 0 {
			port = 8080
		}
		listenAddr = fmt.Sprintf(":%d", port)
	}

	streamHandler := wsapi.NewHandler(hub, logger.Named("wsapi"))
	srv := server.New(listenAddr, coord, cfgHolder, det, rep, logs, disp, logger.Named("server"), streamHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("sentineld ready", zap.String("addr", listenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancelDispatch()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("sentineld stopped")
}
