package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"word_armor/internal/config"
	"word_armor/internal/repository/dictionary"
	redisSvc "word_armor/internal/service/redis"
	"word_armor/internal/service/server"
	"word_armor/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := log.Configure(log.ProfileRuntime, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	mongoDBClient, err := initMongo(cfg.Mongo.URI)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}
	db := mongoDBClient.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redis := redisSvc.NewRedis(rdb)
	if err := redis.Ping(context.Background()); err != nil {
		log.Fatal("connect redis failed", zap.Error(err))
	}

	dictRepo := dictionary.NewDictionaryRepo(db)
	s := server.NewHttpServer(dictRepo, redis)
	s.Run(cfg.Server.Addr)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Error("relay shutdown failed", zap.Error(err))
	}
	if err := mongoDBClient.Disconnect(ctx); err != nil {
		log.Error("mongo disconnect failed", zap.Error(err))
	}
	rdb.Close()
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
