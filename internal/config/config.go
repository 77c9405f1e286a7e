package config

import (
	"fmt"
	"os"
	"strconv"

	"mailminder/pkg/config"
)

// Config api 与 worker 共用的配置
type Config struct {
	DB        config.DBConfig        `yaml:"db"`
	MQ        config.MQConfig        `yaml:"mq"`
	Redis     config.RedisConfig     `yaml:"redis"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	Server    config.ServerConfig    `yaml:"server"`
	Notifier  config.NotifierConfig  `yaml:"notifier"`
	Provider  config.ProviderConfig  `yaml:"provider"`
	Scheduler config.SchedulerConfig `yaml:"scheduler"`
	OTel      config.OTelConfig      `yaml:"otel"`
	Outbox    OutboxConfig           `yaml:"outbox"`
}

// OutboxConfig outbox 分发参数
type OutboxConfig struct {
	BatchSize       int `yaml:"batch_size"`
	MaxRetries      int `yaml:"max_retries"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Load 读取 CONFIG_DIR（默认 config）下 CONFIG_ENV 对应的配置并应用环境变量覆盖
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	dir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, fmt.Errorf("load config (env=%s): %w", env, err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideNotifierFromEnv(&cfg.Notifier)
	config.OverrideProviderFromEnv(&cfg.Provider)
	config.OverrideSchedulerFromEnv(&cfg.Scheduler)
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.OTel.Enabled = enabled
		}
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &cfg, nil
}
