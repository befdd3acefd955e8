// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是整个服务的配置根对象，从 YAML 文件加载，
// 环境变量可以覆盖其中的关键项（容器部署场景）。
type Config struct {
	Server struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers           string `yaml:"brokers"`
			PaymentTopic      string `yaml:"payment_topic"`
			PaymentGroupID    string `yaml:"payment_group_id"`
			NotificationTopic string `yaml:"notification_topic"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"zookeeper"`
		Nacos struct {
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`

	Payment struct {
		// VerifyURL 为空时跳过回调二次确认，直接信任回调内容
		VerifyURL string `yaml:"verify_url"`
	} `yaml:"payment"`

	Cleanup struct {
		Enabled  bool          `yaml:"enabled"`
		Hours    int           `yaml:"hours"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"cleanup"`

	Reconcile struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"reconcile"`

	Card struct {
		// ImportRule 是一条 CEL 表达式，对每个导入的卡密求值，
		// 返回 false 的行会被跳过。空字符串表示不启用格式规则。
		ImportRule string `yaml:"import_rule"`
	} `yaml:"card"`

	Admin struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

// Load 从 path 读取配置文件；文件不存在时退回到全默认值，
// 保证本地开发可以零配置启动。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.Cleanup.Hours <= 0 {
		cfg.Cleanup.Hours = 24
	}
	if cfg.Cleanup.Interval <= 0 {
		cfg.Cleanup.Interval = 24 * time.Hour
	}
	if cfg.Reconcile.Interval <= 0 {
		cfg.Reconcile.Interval = 5 * time.Minute
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Name = "kamishop"
	cfg.Server.Port = 8080
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/kamishop?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Kafka.PaymentTopic = "payment-results"
	cfg.Infra.Kafka.PaymentGroupID = "kamishop-payment-consumer-group"
	cfg.Infra.Kafka.NotificationTopic = "delivery-notifications"
	cfg.Infra.Zookeeper.Addrs = "localhost:2181"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Cleanup.Enabled = true
	cfg.Cleanup.Hours = 24
	cfg.Cleanup.Interval = 24 * time.Hour
	cfg.Reconcile.Enabled = true
	cfg.Reconcile.Interval = 5 * time.Minute
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "admin123"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Name = getEnv("SERVICE_NAME", cfg.Server.Name)
	cfg.Server.Port = getEnvInt("SERVICE_PORT", cfg.Server.Port)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Zookeeper.Addrs = getEnv("ZK_ADDRS", cfg.Infra.Zookeeper.Addrs)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Payment.VerifyURL = getEnv("PAYMENT_VERIFY_URL", cfg.Payment.VerifyURL)
	cfg.Cleanup.Hours = getEnvInt("ORDER_CLEANUP_HOURS", cfg.Cleanup.Hours)
	cfg.Admin.Username = getEnv("ADMIN_USERNAME", cfg.Admin.Username)
	cfg.Admin.Password = getEnv("ADMIN_PASSWORD", cfg.Admin.Password)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
