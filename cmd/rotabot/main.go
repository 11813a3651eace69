package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/handlers"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
	"github.com/sonroyaalmerol/rotabot/internal/stream"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(cfg.NewLogger())

	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolver.EnsureYtdlp(ctx)
	res := resolver.New(ctx, cfg)

	engine := stream.NewEngine(ctx, res, stream.DefaultOptions())
	defer engine.Close()

	bot, err := handlers.NewBot(cfg, repo, res, engine)
	if err != nil {
		log.Fatal(err)
	}
	go bot.Players().Run(ctx, engine.Events())

	if err := bot.Run(ctx); err != nil {
		slog.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}
