package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"word_armor/internal/config"
	"word_armor/internal/dictionary"
	"word_armor/internal/service/app"
	redisSvc "word_armor/internal/service/redis"
	"word_armor/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// os.Args[0] is the program name, os.Args[1:] are arguments
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: client <username> <recipient> [config.toml]")
		os.Exit(2)
	}
	username, recipient := os.Args[1], os.Args[2]
	configPath := ""
	if len(os.Args) > 3 {
		configPath = os.Args[3]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	// The TUI owns the terminal, so only errors reach stderr.
	if err := log.Configure(log.ProfileRuntime, "error"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	seed, err := cfg.Seed()
	if err != nil {
		log.Fatal("armor seed", zap.Error(err))
	}

	ctx := context.Background()
	dict, err := loadDictionary(ctx, cfg)
	if err != nil {
		log.Fatal("load dictionary failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	redis := redisSvc.NewRedis(rdb)

	var store app.StateStore = redis
	if err := redis.Ping(ctx); err != nil {
		log.Warn("redis unavailable, pending fragments stay in memory", zap.Error(err))
		store = nil
	}

	session := app.NewSession(app.SessionConfig{
		User:        username,
		Seed:        seed,
		Dictionary:  dict,
		Compression: cfg.Compression(),
		SoftLimit:   cfg.Armor.SoftLimit,
		Store:       store,
	})

	client := app.NewApp(session, cfg.Server.Addr)
	defer client.Stop()
	if err := client.Run(ctx, recipient); err != nil {
		log.Fatal("client stopped", zap.Error(err))
	}
}

func loadDictionary(ctx context.Context, cfg config.Config) (*dictionary.Dictionary, error) {
	if cfg.Dictionary.Path != "" {
		return dictionary.LoadFile(cfg.Dictionary.Path)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return app.FetchDictionary(ctx, cfg.Server.Addr, cfg.Dictionary.Version)
}
