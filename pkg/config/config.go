package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	runMode    string
	serverConf Server
	logConf    Log
)

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type conf struct {
	RunMode  string   `mapstructure:"runMode"`
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Mysql    Mysql    `mapstructure:"mysql"`
	Redis    Redis    `mapstructure:"redis"`
	Platform Platform `mapstructure:"platform"`
	Openai   Openai   `mapstructure:"openai"`
}

// Init 读取配置文件，环境变量 AUDIT_* 优先
func Init(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	var c conf
	if err := v.Unmarshal(&c); err != nil {
		return err
	}
	runMode = c.RunMode
	serverConf = c.Server
	logConf = c.Log
	mysqlConf = c.Mysql
	redisConf = c.Redis
	platformConf = c.Platform
	myopenai = c.Openai
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runMode", "release")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("mysql.password", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.lockExpiry", 30*time.Second)
	v.SetDefault("platform.baseUrl", "")
	v.SetDefault("platform.apiKey", "")
	v.SetDefault("platform.endpoint", "/chat-messages")
	v.SetDefault("platform.prompt", DefaultAnalysisPrompt)
	v.SetDefault("platform.user", "audit-agent")
	v.SetDefault("platform.idleTimeout", 2*time.Minute)
	v.SetDefault("platform.qps", 5)
	v.SetDefault("platform.burst", 5)
	v.SetDefault("openai.apikey", "")
	v.SetDefault("openai.baseUrl", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("openai.model", "qwen-plus")
	v.SetDefault("openai.chatPrompt", DefaultChatPrompt)
	v.SetDefault("openai.retrieveLimit", 20)
}

func GetRunMode() string {
	return runMode
}

func GetServerConf() Server {
	return serverConf
}

func GetLogConf() Log {
	return logConf
}
