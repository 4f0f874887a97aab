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
	MaxConns int32  `yaml:"max_conns"`
	// SlowQueryMS 慢查询阈值（毫秒）
	SlowQueryMS int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// StorageConfig 实体存储后端：postgres 或 memory
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// CacheConfig 进度快照缓存配置
type CacheConfig struct {
	Driver     string `yaml:"driver"` // redis / memory
	TTLSeconds int    `yaml:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// ClosureConfig 里程碑关闭相关配置
type ClosureConfig struct {
	// AsyncThreshold 依赖数超过该值时级联交给 worker 异步执行
	AsyncThreshold int `yaml:"async_threshold"`
	// MaxAttempts worker 最大尝试次数，超过后写入失败记录
	MaxAttempts int `yaml:"max_attempts"`
	// DedupTTLSeconds 通知去重键的保留时间
	DedupTTLSeconds int `yaml:"dedup_ttl_seconds"`
}

// OutboxConfig Outbox Dispatcher 配置
type OutboxConfig struct {
	IntervalMS int `yaml:"interval_ms"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AppConfig 合并后的完整配置，所有二进制共用
type AppConfig struct {
	ServiceName string        `yaml:"service_name"`
	DB          DBConfig      `yaml:"db"`
	MQ          MQConfig      `yaml:"mq"`
	Redis       RedisConfig   `yaml:"redis"`
	JWT         JWTConfig     `yaml:"jwt"`
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Cache       CacheConfig   `yaml:"cache"`
	Closure     ClosureConfig `yaml:"closure"`
	Outbox      OutboxConfig  `yaml:"outbox"`
	OTel        OTelConfig    `yaml:"otel"`
}

// ApplyDefaults 为未配置的字段填充默认值
func (c *AppConfig) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "milestone-service"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "redis"
	}
	if c.DB.MaxConns == 0 {
		c.DB.MaxConns = 10
	}
	if c.Closure.AsyncThreshold <= 0 {
		c.Closure.AsyncThreshold = 100
	}
	if c.Closure.MaxAttempts <= 0 {
		c.Closure.MaxAttempts = 5
	}
	if c.Closure.DedupTTLSeconds <= 0 {
		c.Closure.DedupTTLSeconds = 24 * 3600
	}
	if c.Outbox.IntervalMS <= 0 {
		c.Outbox.IntervalMS = 1000
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideClosureFromEnv 从环境变量覆盖关闭相关配置
func OverrideClosureFromEnv(cfg *ClosureConfig) {
	if v := os.Getenv("CLOSURE_ASYNC_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AsyncThreshold = n
		}
	}
	if v := os.Getenv("CLOSURE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
}

func overrideAllFromEnv(cfg *AppConfig) {
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideServerFromEnv(&cfg.Server)
	OverrideClosureFromEnv(&cfg.Closure)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if driver := os.Getenv("CACHE_DRIVER"); driver != "" {
		cfg.Cache.Driver = driver
	}
}
