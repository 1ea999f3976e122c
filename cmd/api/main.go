package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/bluereef/baymonitor/internal/config"
	httpserver "github.com/bluereef/baymonitor/internal/http"
	"github.com/bluereef/baymonitor/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store connection error: %v", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	srv := httpserver.New(cfg, st)
	log.Printf("observation API listening on %s", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
