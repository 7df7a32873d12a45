// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/leader_arm/internal/app"
	"github.com/relabs-tech/leader_arm/internal/config"
)

func main() {
	configPath := flag.String("config", "leader_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	log.Println("starting leader-arm console (MQTT subscriber)")

	// Load configuration
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsoleMQTT(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
