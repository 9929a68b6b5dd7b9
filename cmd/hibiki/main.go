package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/natsukashi/hibiki/internal/config"
	"github.com/natsukashi/hibiki/internal/handlers"
	"github.com/natsukashi/hibiki/internal/node"
	"github.com/natsukashi/hibiki/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)

	nodeClient := node.New(node.Config{
		Host:         cfg.NodeHost,
		Port:         cfg.NodePort,
		Password:     cfg.NodePassword,
		Secure:       cfg.NodeSecure,
		SearchPrefix: cfg.NodeSearchPrefix,
	})
	bot := handlers.NewBot(cfg, repo, nodeClient)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
