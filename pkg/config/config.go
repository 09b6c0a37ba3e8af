package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	LLM       LLMConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Batch     BatchConfig
	Telegram  TelegramConfig
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port        string
	LogLevel    string
	LogFormat   string // text, json
	CORSOrigins []string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver     string // mysql, postgres, sqlite
	URL        string // DATABASE_URL，设置时优先使用 postgres
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig 令牌配置
type JWTConfig struct {
	Secret string
	Expire time.Duration
}

// LLMConfig 大模型服务配置
type LLMConfig struct {
	Provider    string // openai, gemini
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
	GeminiKey   string
	GeminiURL   string
	GeminiModel string
	Temperature float64
	Timeout     time.Duration
}

// CacheConfig 分析结果缓存配置
type CacheConfig struct {
	Backend string // memory, redis
	TTL     time.Duration
}

// RateLimitConfig 每用户限流配置
type RateLimitConfig struct {
	PortfolioLimit int
	AssetLimit     int
	Window         time.Duration
}

// BatchConfig 夜间批处理配置
type BatchConfig struct {
	Size        int
	Delay       time.Duration // 批次之间
	CallDelay   time.Duration // 单次分析之间
	MaxAnalyses int
	SkipRecent  time.Duration
	Cron        string
	InServer    bool
}

// TelegramConfig 通知配置
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

const defaultJWTSecret = "roboadvisor-dev-secret-change-me"

// LoadConfig 从环境变量和 .env 文件加载配置
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("未找到.env文件，使用环境变量")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8000"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "mysql"),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "3306"),
			User:       getEnv("DB_USER", "root"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("DB_NAME", "roboadvisor"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "roboadvisor.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", defaultJWTSecret),
			Expire: getEnvDuration("JWT_EXPIRE", "24h"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			OpenAIKey:   getEnv("OPENAI_API_KEY", os.Getenv("OPENAI_SECRET")),
			OpenAIURL:   getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel: getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiURL:   getEnv("GEMINI_BASE_URL", ""),
			GeminiModel: getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("LLM_TIMEOUT", "90s"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			TTL:     getEnvDuration("CACHE_TTL", "12h"),
		},
		RateLimit: RateLimitConfig{
			PortfolioLimit: getEnvInt("RATE_LIMIT_PORTFOLIO", 10),
			AssetLimit:     getEnvInt("RATE_LIMIT_ASSET", 20),
			Window:         getEnvDuration("RATE_LIMIT_WINDOW", "60m"),
		},
		Batch: BatchConfig{
			Size:        getEnvInt("BATCH_SIZE", 10),
			Delay:       getEnvDuration("BATCH_DELAY", "60s"),
			CallDelay:   getEnvDuration("BATCH_CALL_DELAY", "5s"),
			MaxAnalyses: getEnvInt("BATCH_MAX_ANALYSES", 500),
			SkipRecent:  getEnvDuration("BATCH_SKIP_RECENT", "12h"),
			Cron:        getEnv("BATCH_CRON", "0 0 3 * * *"),
			InServer:    getEnvBool("BATCH_IN_SERVER", false),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	SetupLogging(cfg.Server)

	logrus.Info("配置加载完成")
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.RateLimit.PortfolioLimit <= 0 || c.RateLimit.AssetLimit <= 0 {
		return errors.New("rate limits must be positive")
	}
	if c.Batch.Size <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.JWT.Secret == defaultJWTSecret && c.Server.LogLevel != "debug" {
		logrus.Warn("JWT_SECRET 使用默认值，请在生产环境中配置")
	}
	return nil
}

// DebugMode 是否处于调试模式
func (c *Config) DebugMode() bool {
	return c.Server.LogLevel == "debug"
}

// SetupLogging 设置logrus级别和格式
func SetupLogging(cfg ServerConfig) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("无法解析环境变量 %s 的整数值: %s，使用默认值: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("无法解析环境变量 %s 的时间间隔值: %s，使用默认值: %s", key, value, defaultValue)
	}

	duration, err := time.ParseDuration(defaultValue)
	if err != nil {
		logrus.Errorf("无法解析默认时间间隔值: %s", defaultValue)
		return 0
	}
	return duration
}
