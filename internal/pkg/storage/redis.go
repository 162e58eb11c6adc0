package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"audit-agent/pkg/config"
)

// Redis 未配置地址时为 nil
var Redis *redis.Client

func initRedis() error {
	conf := config.GetRedisConf()
	if conf.Addr == "" {
		log.Info("redis not configured, using in-process locks")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	Redis = client
	log.Info("redis connection success")
	return nil
}
