package config

import "time"

var redisConf Redis

// Redis 为空地址时使用进程内锁
type Redis struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	LockExpiry time.Duration `mapstructure:"lockExpiry"`
}

func GetRedisConf() Redis {
	return redisConf
}
