package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/markdave123-py/kbchat/internal/app"
	"github.com/markdave123-py/kbchat/internal/config"
)

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load before reading the environment")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	secrets := pflag.String("secrets", "", "YAML file with knowledge_base_id and passwords (overrides SECRETS_FILE)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig(*envFile)
	if *port != "" {
		cfg.Port = *port
	}
	if *secrets != "" {
		cfg.SecretsFile = *secrets
	}

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer application.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	log.Printf("kbchat is running against knowledge base %s.", cfg.KnowledgeBaseID)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
