package main

import (
	"log"
	"os"

	"github.com/flowkan/process-ai/internal/config"
	"github.com/flowkan/process-ai/internal/db"
	"github.com/flowkan/process-ai/internal/httpapi"
	"github.com/flowkan/process-ai/internal/notify"
	"github.com/flowkan/process-ai/internal/store/rabbitmq"
	"github.com/flowkan/process-ai/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RateLimitPerMinute)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	hub := notify.NewHub()

	r := httpapi.NewRouter(gdb, cfg, rds, hub, pub)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("server listening addr=%s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
