package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"warden/cmd/internal/app"
)

func main() {
	// A local .env is optional; variables already set in the environment win.
	if err := godotenv.Load(envFile()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load env file: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := app.Run(ctx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
}

func envFile() string {
	if p := os.Getenv("WARDEN_ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}
