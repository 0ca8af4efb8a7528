package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danielabrozzoni/cosignerd/internal/config"
	"github.com/danielabrozzoni/cosignerd/internal/daemon"
	"github.com/danielabrozzoni/cosignerd/internal/logger"
	"github.com/danielabrozzoni/cosignerd/internal/network"
	"github.com/danielabrozzoni/cosignerd/internal/policy"
	"github.com/danielabrozzoni/cosignerd/internal/signer"
)

func main() {
	confPath := flag.String("conf", "", "path to the configuration file (default ~/.cosignerd/config.yaml)")
	flag.Parse()

	path, err := resolveConfPath(*confPath)
	if err != nil {
		log.Fatalf("Failed to resolve configuration path: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	state, err := daemon.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}
	defer state.Close()

	logConfig := logger.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		ConsoleOutput: true,
		FilePath:      state.LogFile(),
	}
	if err := logger.Init(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	applog, err := logger.New(logConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := state.WritePidFile(); err != nil {
		log.Fatalf("Failed to write pid file: %v", err)
	}
	defer state.RemovePidFile()

	engine := policy.NewEngine(state.Ledger, signer.New(state.SigningKey), applog)

	host, err := network.NewHost(&cfg.Network, state.IdentityKey)
	if err != nil {
		applog.Fatal("Failed to create network host", "error", err.Error())
	}
	defer host.Close()

	listener, err := network.NewListener(host, engine, cfg.Managers, applog)
	if err != nil {
		applog.Fatal("Failed to create listener", "error", err.Error())
	}

	listener.Start()
	defer listener.Stop()

	applog.Info("cosignerd started",
		"datadir", state.DataDir,
		"managers", len(cfg.Managers),
		"addresses", cfg.Network.Addresses)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	applog.Info("shutting down", "signal", sig.String())
}

// resolveConfPath defaults the configuration file into the default
// datadir, creating the directory on first run
func resolveConfPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory: %w", err)
	}

	dir := filepath.Join(home, daemon.DefaultDataDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	return filepath.Join(dir, "config.yaml"), nil
}
