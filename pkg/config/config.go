package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// SlowQueryMillis 超过该阈值的查询记录为慢查询，0 表示使用默认值
	SlowQueryMillis int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled 未配置地址时视为关闭
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string `yaml:"port"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

// ShutdownTimeout 优雅关闭等待时间
func (c ServerConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// SMTPConfig 提醒邮件的发信配置
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// NotifierConfig driver: smtp | log
type NotifierConfig struct {
	Driver string     `yaml:"driver"`
	SMTP   SMTPConfig `yaml:"smtp"`
}

// IMAPConfig IMAP 拉取配置
type IMAPConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Mailbox  string `yaml:"mailbox"`
}

// ProviderConfig driver: gmail | imap
type ProviderConfig struct {
	Driver         string     `yaml:"driver"`
	GmailBaseURL   string     `yaml:"gmail_base_url"`
	Query          string     `yaml:"query"`
	MaxResults     int        `yaml:"max_results"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	IMAP           IMAPConfig `yaml:"imap"`
	Breaker        struct {
		MaxFailures     int `yaml:"max_failures"`
		ResetSeconds    int `yaml:"reset_seconds"`
		HalfOpenMaxReqs int `yaml:"half_open_max_requests"`
	} `yaml:"breaker"`
}

// SchedulerConfig 提醒扫描配置
type SchedulerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	LockSeconds     int `yaml:"lock_seconds"`
}

// Interval 扫描周期，默认一分钟
func (c SchedulerConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Endpoint       string  `yaml:"endpoint"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	setString(&cfg.Host, "DB_HOST")
	setInt(&cfg.Port, "DB_PORT")
	setString(&cfg.User, "DB_USER")
	setString(&cfg.Password, "DB_PASSWORD")
	setString(&cfg.Name, "DB_NAME")
	setString(&cfg.SSLMode, "DB_SSLMODE")
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	setString(&cfg.URL, "MQ_URL")
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	setString(&cfg.Addr, "REDIS_ADDR")
	setString(&cfg.Password, "REDIS_PASSWORD")
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	setString(&cfg.Secret, "JWT_SECRET")
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	setString(&cfg.Port, "SERVER_PORT")
}

// OverrideNotifierFromEnv 从环境变量覆盖发信配置
func OverrideNotifierFromEnv(cfg *NotifierConfig) {
	setString(&cfg.Driver, "NOTIFIER_DRIVER")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")
}

// OverrideProviderFromEnv 从环境变量覆盖邮件源配置
func OverrideProviderFromEnv(cfg *ProviderConfig) {
	setString(&cfg.Driver, "PROVIDER_DRIVER")
	setString(&cfg.IMAP.Addr, "IMAP_ADDR")
}

// OverrideSchedulerFromEnv 从环境变量覆盖扫描配置
func OverrideSchedulerFromEnv(cfg *SchedulerConfig) {
	setInt(&cfg.IntervalSeconds, "SCAN_INTERVAL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
