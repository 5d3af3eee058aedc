package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"RemitChain/internal/api"
	"RemitChain/internal/config"
	"RemitChain/internal/currency"
	"RemitChain/internal/intent"
	"RemitChain/internal/llm"
	"RemitChain/internal/llm/openai"
	"RemitChain/internal/observability/alerting"
	"RemitChain/internal/observability/metrics"
	"RemitChain/internal/orchestrator"
	"RemitChain/internal/quote"
	"RemitChain/internal/transfer"
	"RemitChain/internal/verification"
	"RemitChain/internal/web3/provider"
	"RemitChain/pkg/logger"
)

// main 是汇款守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("remitd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("REMITCHAIN_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "remitd.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry, err := loadCurrencyRegistry(cfg)
	if err != nil {
		return err
	}

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}
	parser := intent.NewParser(registry, llmClient)

	chainRegistry, err := provider.NewRegistry(ctx, provider.Options{
		ChainConfig:  cfg.Chains.Config,
		DefaultChain: cfg.Chains.Default,
		SignerKeyHex: cfg.Chains.ResolveSignerKey(),
	})
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	web3Client, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	estimator := quote.NewEstimator(web3Client)
	orch := orchestrator.New(web3Client, registry, estimator)

	transferStore, err := createTransferStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if transferStore != nil {
			_ = transferStore.Close()
		}
	}()

	transferQueue, err := createTransferQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if transferQueue != nil {
			if err := transferQueue.Close(); err != nil {
				logger.L().Error("关闭汇款队列失败", slog.Any("error", err))
			}
		}
	}()

	gate, err := createVerificationGate(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if gate != nil {
			_ = gate.Close()
		}
	}()

	transferService := transfer.NewService(transferStore, transferQueue, cfg.Storage.TransferStore.Retries)
	executor := transfer.NewRemitter(parser, orch, web3Client.ChainID().String())

	processorOpts := []transfer.ProcessorOption{
		transfer.WithWorkerCount(cfg.Queue.Worker),
		transfer.WithProcessorLogger(logger.Named("processor")),
	}
	if dispatcher := createAlertDispatcher(cfg); dispatcher != nil {
		processorOpts = append(processorOpts, transfer.WithAlertDispatcher(dispatcher))
	}
	processor := transfer.NewProcessor(executor, transferStore, transferQueue, transferQueue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("汇款处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	logger.L().Info("remitd 启动完成",
		slog.String("address", cfg.Server.Address),
		slog.Any("chains", chainRegistry.Chains()),
		slog.String("store", cfg.Storage.TransferStore.Driver),
		slog.String("queue", cfg.Queue.Driver),
	)

	server := api.NewServer(cfg.Server.Address, parser, transferService, gate, web3Client)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadCurrencyRegistry(cfg *config.Config) (*currency.Registry, error) {
	if cfg.Currency.Registry == "" {
		return currency.NewRegistry(), nil
	}
	return currency.LoadRegistry(cfg.Currency.Registry)
}

// createLLMClient 构造大模型客户端。拿不到 API Key 时返回 nil，
// 意图解析仅依赖确定性回退。
func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "none":
		return nil, nil
	case "", "openai":
		apiKey := cfg.LLM.OpenAI.ResolveAPIKey()
		if apiKey == "" {
			logger.L().Warn("未配置 OpenAI API Key，意图解析退化为确定性回退")
			return nil, nil
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createTransferStore(cfg *config.Config) (transfer.Store, error) {
	switch cfg.Storage.TransferStore.Driver {
	case "", "memory":
		return transfer.NewMemoryStore(), nil
	case "mysql":
		return transfer.NewMySQLStore(cfg.Storage.TransferStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.TransferStore.Driver)
	}
}

func createTransferQueue(cfg *config.Config) (transfer.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return transfer.NewMemoryQueue(1024), nil
	case "redis":
		return transfer.NewRedisQueue(transfer.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return transfer.NewRabbitMQQueue(transfer.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func createVerificationGate(cfg *config.Config) (verification.Gate, error) {
	switch cfg.Verification.Driver {
	case "", "memory":
		return verification.NewMemoryGate(), nil
	case "redis":
		return verification.NewRedisGate(verification.RedisGateConfig{
			Address:   cfg.Verification.Redis.Address,
			Password:  cfg.Verification.Redis.Password,
			DB:        cfg.Verification.Redis.DB,
			KeyPrefix: cfg.Verification.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的核验存储驱动: %s", cfg.Verification.Driver)
	}
}

// createAlertDispatcher 按配置组装告警渠道。发送器由部署方注入，
// 未注入时通知器会记录警告并跳过。
func createAlertDispatcher(cfg *config.Config) alerting.Dispatcher {
	if !cfg.Alerting.Enabled {
		return nil
	}
	notifiers := make([]alerting.Notifier, 0, 3)
	if cfg.Alerting.Email.Enabled {
		notifiers = append(notifiers, &alerting.EmailNotifier{
			To:            cfg.Alerting.Email.To,
			SubjectPrefix: cfg.Alerting.Email.SubjectPrefix,
		})
	}
	if cfg.Alerting.Slack.Enabled {
		notifiers = append(notifiers, &alerting.SlackNotifier{ChannelID: cfg.Alerting.Slack.ChannelID})
	}
	if cfg.Alerting.DingTalk.Enabled {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
