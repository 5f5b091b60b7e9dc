package config

import "time"

// 两个服务共用的基础设施配置，由各模块的 Config 内嵌

// AppConfig 运行环境
type AppConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// IsDevelopment 开发环境返回 true
func (c AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseConfig Postgres 连接配置
type DatabaseConfig struct {
	URL             string        `env:"COLISEUM_DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"false"`
}

// RedisConfig 结算标记缓存配置，Disabled 时跳过缓存
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Disabled bool   `env:"REDIS_DISABLED" envDefault:"false"`
}

// NatsConfig 消息队列配置
type NatsConfig struct {
	Address     string        `env:"NATS_ADDRESS" envDefault:"localhost:4222"`
	Storage     string        `env:"JETSTREAM_STORAGE" envDefault:"file"`
	OpenAckMode string        `env:"COLISEUM_OPEN_ACK_MODE" envDefault:"none"`
	AckWait     time.Duration `env:"COLISEUM_ACK_WAIT" envDefault:"30s"`
}

// RegistryConfig 服务注册中心
type RegistryConfig struct {
	ConsulAddress string `env:"CONSUL_ADDRESS" envDefault:"localhost:8500"`
}
