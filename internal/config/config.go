package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了汇款守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server       ServerConfig       `json:"server"`
	Logging      LoggingConfig      `json:"logging"`
	LLM          LLMConfig          `json:"llm"`
	Chains       ChainsConfig       `json:"chains"`
	Currency     CurrencyConfig     `json:"currency"`
	Storage      StorageConfig      `json:"storage"`
	Queue        QueueConfig        `json:"queue"`
	Verification VerificationConfig `json:"verification"`
	Metrics      MetricsConfig      `json:"metrics"`
	Alerting     AlertingConfig     `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 控制进程日志与审计日志输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 描述审计日志文件及其轮转策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// LLMConfig 用于配置意图解析的大模型调用方式。
// provider 为 none 时只依赖确定性回退解析。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的调用参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回调用超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 返回配置或环境变量中的 API Key。
func (c OpenAIConfig) ResolveAPIKey() string {
	key := strings.TrimSpace(c.APIKey)
	if key == "" && c.APIKeyEnv != "" {
		key = strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return key
}

// ChainsConfig 指定链定义文件与签名密钥来源。
type ChainsConfig struct {
	Config       string `json:"config"`
	Default      string `json:"default"`
	SignerKey    string `json:"signer_key"`
	SignerKeyEnv string `json:"signer_key_env"`
}

// ResolveSignerKey 返回配置或环境变量中的签名私钥。
func (c ChainsConfig) ResolveSignerKey() string {
	key := strings.TrimSpace(c.SignerKey)
	if key == "" && c.SignerKeyEnv != "" {
		key = strings.TrimSpace(os.Getenv(c.SignerKeyEnv))
	}
	return key
}

// CurrencyConfig 指定币种表文件，留空则使用内置表。
type CurrencyConfig struct {
	Registry string `json:"registry"`
}

// StorageConfig 统一描述 MySQL 等后端的连接信息。
type StorageConfig struct {
	TransferStore TransferStoreConfig `json:"transfer_store"`
}

// TransferStoreConfig 控制汇款状态的持久化方式。
type TransferStoreConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Retries int    `json:"retries"`
}

// QueueConfig 控制汇款队列驱动与消费并发。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
	KeyPrefix string `json:"key_prefix"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// VerificationConfig 控制身份核验标记的存储方式。
type VerificationConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
}

// MetricsConfig 控制指标服务。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// AlertingConfig 控制汇款失败告警的派发渠道。
type AlertingConfig struct {
	Enabled  bool                `json:"enabled"`
	Email    EmailAlertConfig    `json:"email"`
	Slack    SlackAlertConfig    `json:"slack"`
	DingTalk DingTalkAlertConfig `json:"dingtalk"`
}

// EmailAlertConfig 描述邮件告警的收件人。
type EmailAlertConfig struct {
	Enabled       bool     `json:"enabled"`
	To            []string `json:"to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// SlackAlertConfig 描述 Slack 告警渠道。
type SlackAlertConfig struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channel_id"`
}

// DingTalkAlertConfig 描述钉钉告警渠道。
type DingTalkAlertConfig struct {
	Enabled bool `json:"enabled"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
	if c.Logging.Audit.Enabled {
		if c.Logging.Audit.Path == "" {
			c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else if !filepath.IsAbs(c.Logging.Audit.Path) {
			c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
		}
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Chains.Config == "" {
		c.Chains.Config = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chains.Config) {
		c.Chains.Config = filepath.Join(baseDir, c.Chains.Config)
	}
	if c.Chains.SignerKeyEnv == "" {
		c.Chains.SignerKeyEnv = "REMITCHAIN_SIGNER_KEY"
	}

	if c.Currency.Registry != "" && !filepath.IsAbs(c.Currency.Registry) {
		c.Currency.Registry = filepath.Join(baseDir, c.Currency.Registry)
	}

	if c.Storage.TransferStore.Driver == "" {
		c.Storage.TransferStore.Driver = "memory"
	}
	if c.Storage.TransferStore.Retries <= 0 {
		c.Storage.TransferStore.Retries = 3
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Worker <= 0 {
		c.Queue.Worker = 4
	}

	if c.Verification.Driver == "" {
		c.Verification.Driver = "memory"
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}
