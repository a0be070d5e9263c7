package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/eduquiz/internal/config"
	"github.com/victornm/eduquiz/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

// loadConfig reads CONFIG_PATH when set; otherwise the defaults are overridden by env alone.
func loadConfig() (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.LoadDotEnv(".env"); err != nil {
		return c, fmt.Errorf("load .env: %w", err)
	}

	if err := config.Load(os.Getenv("CONFIG_PATH"), &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
