package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	WorkerID int64  `mapstructure:"worker_id"`
}

// DatabaseConfig driver 取值 mysql / postgres
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	MaxIdleConns  int    `mapstructure:"max_idle_conns"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	LogSQL        bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Settlement       string `mapstructure:"settlement"`
	ScheduledPayment string `mapstructure:"scheduled_payment"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// SMTPConfig Host 为空时不发送邮件
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type BusinessConfig struct {
	LockTTLSeconds         int `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMs    int `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries         int `mapstructure:"lock_max_retries"`
	MaxRetryCount          int `mapstructure:"max_retry_count"`
	OutboxIntervalMs       int `mapstructure:"outbox_interval_ms"`
	PairAuditIntervalSec   int `mapstructure:"pair_audit_interval_sec"`
	PairAuditStaleMinutes  int `mapstructure:"pair_audit_stale_minutes"`
	TransactionPageSizeMax int `mapstructure:"transaction_page_size_max"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.migrations_dir", "migrations/postgres")
	v.SetDefault("kafka.topic.settlement", "bank.settlement")
	v.SetDefault("kafka.topic.scheduled_payment", "bank.scheduled_payment")
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval_ms", 500)
	v.SetDefault("business.pair_audit_interval_sec", 60)
	v.SetDefault("business.pair_audit_stale_minutes", 10)
	v.SetDefault("business.transaction_page_size_max", 100)
}

// LoadConfig 加载配置文件，环境变量 BANK_<SECTION>_<KEY> 覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = config
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret 不能为空")
	}
	return nil
}
