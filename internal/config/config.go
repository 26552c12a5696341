package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

const (
	StorageDriverMySQL  = "mysql"
	StorageDriverMemory = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
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
	LedgerTransaction string `mapstructure:"ledger_transaction"`
}

// LedgerConfig 账本引擎配置
type LedgerConfig struct {
	HouseAccountNumber int64         `mapstructure:"house_account_number"` // 手续费归集账户（固定账号）
	AllowOverdraft     bool          `mapstructure:"allow_overdraft"`      // 是否允许余额为负
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval  time.Duration `mapstructure:"lock_retry_interval"`
	LockMaxRetries     int           `mapstructure:"lock_max_retries"`
	PostTimeout        time.Duration `mapstructure:"post_timeout"` // 网关成功后入账的最长时间
}

// GatewayConfig 模拟支付网关配置
type GatewayConfig struct {
	DeclineCard string        `mapstructure:"decline_card"` // 该卡号总是被拒绝，用于测试
	Latency     time.Duration `mapstructure:"latency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BusinessConfig struct {
	MaxRetryCount  int    `mapstructure:"max_retry_count"`
	MinAmountRaw   string `mapstructure:"min_amount"`
	MaxAmountRaw   string `mapstructure:"max_amount"`
	DefaultPerPage int    `mapstructure:"default_per_page"`
	MaxPerPage     int    `mapstructure:"max_per_page"`

	MinAmount decimal.Decimal `mapstructure:"-"`
	MaxAmount decimal.Decimal `mapstructure:"-"`
}

// Default 返回带默认值的配置，测试和内存模式可直接使用
func Default() *Config {
	cfg, err := load(viper.New())
	if err != nil {
		// 默认值本身不会出错
		panic(err)
	}
	return cfg
}

// LoadConfig 加载配置文件，环境变量 EWALLET_* 可覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("EWALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.driver", StorageDriverMySQL)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")
	v.SetDefault("kafka.topic.ledger_transaction", "ledger.transaction.created")
	v.SetDefault("ledger.house_account_number", 1000)
	v.SetDefault("ledger.allow_overdraft", false)
	v.SetDefault("ledger.lock_ttl", 30*time.Second)
	v.SetDefault("ledger.lock_retry_interval", 100*time.Millisecond)
	v.SetDefault("ledger.lock_max_retries", 30)
	v.SetDefault("ledger.post_timeout", 10*time.Second)
	v.SetDefault("gateway.decline_card", "4242424242424242")
	v.SetDefault("gateway.latency", time.Duration(0))
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.min_amount", "1.00")
	v.SetDefault("business.max_amount", "100000.00")
	v.SetDefault("business.default_per_page", 30)
	v.SetDefault("business.max_per_page", 100)
}

func (c *Config) normalize() error {
	switch c.Storage.Driver {
	case StorageDriverMySQL, StorageDriverMemory:
	default:
		return fmt.Errorf("不支持的存储类型: %s", c.Storage.Driver)
	}

	minAmount, err := decimal.NewFromString(c.Business.MinAmountRaw)
	if err != nil {
		return fmt.Errorf("business.min_amount 格式错误: %w", err)
	}
	maxAmount, err := decimal.NewFromString(c.Business.MaxAmountRaw)
	if err != nil {
		return fmt.Errorf("business.max_amount 格式错误: %w", err)
	}
	if !minAmount.IsPositive() || maxAmount.LessThan(minAmount) {
		return fmt.Errorf("金额区间不合法: [%s, %s]", minAmount, maxAmount)
	}
	c.Business.MinAmount = minAmount
	c.Business.MaxAmount = maxAmount

	if c.Ledger.PostTimeout <= 0 {
		c.Ledger.PostTimeout = 10 * time.Second
	}

	if c.Business.DefaultPerPage <= 0 {
		c.Business.DefaultPerPage = 30
	}
	if c.Business.MaxPerPage < c.Business.DefaultPerPage {
		c.Business.MaxPerPage = c.Business.DefaultPerPage
	}
	return nil
}
