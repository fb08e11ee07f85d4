package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	AdminKey        string        `mapstructure:"admin_key"` // 为空时关闭运维接口
}

// DatabaseConfig 数据库配置，driver 为 mysql 或 sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

// DSN 构建 MySQL 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// RedisConfig Redis配置，Addr 为空时不使用 Redis
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	CatalogTTL  time.Duration `mapstructure:"catalog_ttl"`
	VoteLockTTL time.Duration `mapstructure:"vote_lock_ttl"`
}

// KafkaConfig 投票事件发布，Brokers 为空时退回 Redis 队列或内存
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	GlobalRate  int           `mapstructure:"global_rate"`
	GlobalBurst int           `mapstructure:"global_burst"`
	UserRate    int           `mapstructure:"user_rate"`
	UserBurst   int           `mapstructure:"user_burst"`
	VoteWindow  time.Duration `mapstructure:"vote_window"`
	VoteLimit   int           `mapstructure:"vote_limit"`
}

// ConversationConfig 聊天会话配置
type ConversationConfig struct {
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	DefaultLanguage string        `mapstructure:"default_language"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"` // text|json
	IncludeCaller bool   `mapstructure:"include_caller"`
}

// IsDevelopment 是否开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 环境变量名沿用部署脚本中的命名
var envBindings = map[string]string{
	"environment":                   "ENVIRONMENT",
	"server.port":                   "SERVER_PORT",
	"server.allowed_origins":        "ALLOWED_ORIGINS",
	"server.admin_key":              "ADMIN_KEY",
	"database.driver":               "DB_DRIVER",
	"database.host":                 "DB_HOST",
	"database.port":                 "DB_PORT",
	"database.user":                 "DB_USER",
	"database.password":             "DB_PASSWORD",
	"database.name":                 "DB_NAME",
	"database.sqlite_path":          "DB_SQLITE_PATH",
	"redis.addr":                    "REDIS_ADDR",
	"redis.password":                "REDIS_PASSWORD",
	"redis.db":                      "REDIS_DB",
	"kafka.brokers":                 "KAFKA_BROKERS",
	"kafka.topic":                   "KAFKA_TOPIC",
	"rate_limit.enabled":            "ENABLE_RATE_LIMIT",
	"rate_limit.global_rate":        "GLOBAL_RATE_LIMIT",
	"rate_limit.user_rate":          "USER_RATE_LIMIT",
	"conversation.default_language": "DEFAULT_LANGUAGE",
	"logging.level":                 "LOG_LEVEL",
	"logging.format":                "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.admin_key", "")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "voteuser")
	v.SetDefault("database.password", "votepassword")
	v.SetDefault("database.name", "votingdb")
	v.SetDefault("database.sqlite_path", "ovozber.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 3*time.Second)
	v.SetDefault("redis.catalog_ttl", 5*time.Minute)
	v.SetDefault("redis.vote_lock_ttl", 5*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "vote-cast")
	v.SetDefault("kafka.group_id", "ovozber-statistics")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.global_rate", 100)
	v.SetDefault("rate_limit.global_burst", 200)
	v.SetDefault("rate_limit.user_rate", 10)
	v.SetDefault("rate_limit.user_burst", 20)
	v.SetDefault("rate_limit.vote_window", time.Minute)
	v.SetDefault("rate_limit.vote_limit", 30)

	v.SetDefault("conversation.session_ttl", 30*time.Minute)
	v.SetDefault("conversation.default_language", "uz")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.include_caller", false)
}

// Load 加载配置：默认值 < 配置文件（可选） < 环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("端口 %d 超出范围", c.Server.Port)
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Conversation.DefaultLanguage {
	case "uz", "en":
	default:
		return fmt.Errorf("不支持的默认语言: %q", c.Conversation.DefaultLanguage)
	}
	return nil
}
