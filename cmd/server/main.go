package main

import (
	"context"
	"log"

	"github.com/circlesplus/backend/internal/config"
	"github.com/circlesplus/backend/internal/entity"
	"github.com/circlesplus/backend/internal/server"
	"github.com/circlesplus/backend/pkg/database"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db := database.Connect()
	if err := migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	redisClient := connectRedis(cfg.RedisURL)

	srv := server.NewServer(db, redisClient)
	srv.StartStorySweeper(context.Background(), cfg.StorySweepInterval)

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Profile{},
		&entity.Circle{},
		&entity.CircleMember{},
		&entity.Post{},
		&entity.Comment{},
		&entity.Like{},
		&entity.Story{},
		&entity.Notification{},
		&entity.Conversation{},
		&entity.ConversationParticipant{},
		&entity.DirectMessage{},
		&entity.CircleMessage{},
	)
}

// connectRedis returns nil when Redis is not configured; realtime fan-out
// and rate limiting degrade gracefully without it.
func connectRedis(url string) *redis.Client {
	if url == "" {
		log.Println("REDIS_URL not set, realtime features disabled")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("invalid REDIS_URL, realtime features disabled: %v", err)
		return nil
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis unreachable, realtime features disabled: %v", err)
		return nil
	}

	return client
}
