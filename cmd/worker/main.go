package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes recorded events and folds them into weekly summaries.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory: summaries are built inside the api process, nothing to do")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := attendance.NewPostgresStore(db.Client)
	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
	}

	redisClient := store.NewRedis(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, will keep retrying", redisClient.Addr())
	} else if n, err := redisClient.Backlog(ctx, cfg.QueueKey); err == nil && n > 0 {
		log.Printf("%d events waiting on %s", n, cfg.QueueKey)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	summarizer := attendance.NewSummarizer(repo)

	log.Println("worker started, waiting for messages...")
	if err := summarizer.Run(ctx, q); err != nil {
		log.Printf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}
