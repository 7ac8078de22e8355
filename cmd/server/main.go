package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hunt-arena/server/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{ConfigPath: *configPath, EnvPath: *envPath}); err != nil {
		log.Fatalf("%v", err)
	}
}
