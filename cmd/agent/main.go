package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"hue-controller/internal/agent"
	"hue-controller/internal/config"
	"hue-controller/internal/log"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Get().Fatalf("Failed to load config: %v", err)
	}
	log.Setup(cfg.LogLevel)
	if cfg.Bridge.IP == "" {
		log.Get().Fatalf("No bridge configured, create %s with bridge.ip and bridge.app_key", *configPath)
	}

	logger := log.WithComponent("main")
	logger.Infof("Starting Hue Controller Agent version: %s, commit: %s, built: %s", version, commit, date)

	a, err := agent.NewAgent(cfg)
	if err != nil {
		logger.Fatalf("Failed to create agent: %v", err)
	}

	go a.Run()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down agent...")
	a.Shutdown()
	logger.Info("Agent shut down gracefully.")
}
