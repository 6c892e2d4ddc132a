package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/renlou/orbit/pkg/account"
	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/device"
	"github.com/renlou/orbit/pkg/history"
	"github.com/renlou/orbit/pkg/invoke"
	"github.com/renlou/orbit/pkg/ipc"
	"github.com/renlou/orbit/pkg/logging"
	"github.com/renlou/orbit/pkg/oauth"
	"github.com/renlou/orbit/pkg/stats"
	"github.com/renlou/orbit/pkg/warmup"
)

func main() {
	dataDir := flag.String("data-dir", "", "Path to data directory (defaults to the user config dir)")
	socket := flag.String("socket", "", "Override IPC socket path (optional)")
	flag.Parse()

	logger := logging.New("orbitd")

	dir := *dataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			logger.Printf("fatal error: resolve config dir: %v", err)
			os.Exit(1)
		}
		dir = filepath.Join(base, "orbit")
	}
	logger.Printf("starting daemon with data dir %s", dir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, dir, *socket, logger); err != nil {
		logger.Printf("fatal error: %v", err)
		os.Exit(1)
	}
}

type daemon struct {
	dataDir  string
	cfg      *config.AppConfig
	logger   *logging.Logger
	accounts *account.Store
	devices  *device.Store
	stats    *stats.Store
	quota    *account.QuotaClient
	oauth    *oauth.Client
	warmer   *warmup.Warmer
	history  *history.Repo
}

func run(ctx context.Context, dataDir, socketOverride string, logger *logging.Logger) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	cfg, err := config.LoadDir(dataDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logCfg := cfg.Logging
	logCfg.FilePath = config.ResolvePath(dataDir, logCfg.FilePath)
	if err := logger.Configure(logCfg); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Close()

	statsStore, err := stats.Open(filepath.Join(dataDir, "stats.db"))
	if err != nil {
		return fmt.Errorf("open stats db: %w", err)
	}
	defer statsStore.Close()
	if err := statsStore.Init(ctx); err != nil {
		return fmt.Errorf("init stats db: %w", err)
	}

	accounts, err := account.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	devices, err := device.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}

	var snapshots *history.Repo
	if cfg.History.Enabled {
		snapshots, err = history.Open(dataDir, logger)
		if err != nil {
			logger.Printf("warning: history disabled, open repo failed: %v", err)
		}
	}

	d := &daemon{
		dataDir:  dataDir,
		cfg:      cfg,
		logger:   logger,
		accounts: accounts,
		devices:  devices,
		stats:    statsStore,
		quota:    account.NewQuotaClient(cfg.Quota, logger),
		oauth:    oauth.New(cfg.OAuth),
		warmer:   warmup.NewWarmer(cfg.Warmup, logger),
		history:  snapshots,
	}

	dispatcher := invoke.NewDispatcher(logger)
	d.registerHandlers(dispatcher)

	socketPath := socketOverride
	if socketPath == "" {
		socketPath = config.ResolvePath(dataDir, cfg.Server.SocketPath)
	}
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}
	ipcServer := ipc.NewServer(dispatcher, logger)
	if err := ipcServer.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer func() {
		ipcServer.Stop()
		cleanupSocket(socketPath)
	}()

	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
		Handler: invoke.NewHTTPServer(dispatcher, logger, invoke.HTTPOptions{
			RateLimitRPS:   cfg.Server.RateLimit,
			RateLimitBurst: cfg.Server.RateBurst,
		}).Router(),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Printf("daemon ready; http on %s, socket at %s", httpServer.Addr, socketPath)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
