package transfer

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/observability/alerting"
	"RemitChain/internal/observability/metrics"
	"RemitChain/pkg/logger"
)

// Processor 负责从队列消费汇款并交给执行器处理。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动汇款处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置汇款消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, transferID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	transfer, err := p.store.Claim(ctx, transferID)
	if err != nil {
		if stdErrors.Is(err, ErrTransferNotFound) || stdErrors.Is(err, ErrTransferCompleted) || stdErrors.Is(err, ErrTransferExhausted) {
			p.logDebug("跳过汇款", slog.String("transfer_id", transferID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取汇款失败", slog.Any("error", err), slog.String("transfer_id", transferID))
		p.emitAlert(ctx, &Transfer{ID: transferID}, CodeTransferProcessing, err, "claim")
		return err
	}

	receipt, execErr := p.executor.Execute(ctx, transfer)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, transfer, execErr)
	}

	var record Receipt
	if receipt != nil {
		record = *receipt
	}
	if err := p.store.MarkSucceeded(ctx, transfer.ID, record); err != nil {
		logger.L().Error("标记汇款成功状态失败", slog.Any("error", err), slog.String("transfer_id", transfer.ID))
		if storeErr := p.store.MarkFailed(ctx, transfer.ID, CodeTransferProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("transfer_id", transfer.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, transfer.ID); pubErr != nil {
			return xerrors.Wrap(CodeTransferPublish, pubErr, fmt.Sprintf("汇款 %s 在标记成功失败后重投失败", transfer.ID))
		}
		logger.Audit().Warn("汇款标记成功失败后重试",
			slog.String("transfer_id", transfer.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	metrics.ObserveTransfer(string(StatusSucceeded))
	logger.Audit().Info("汇款执行成功",
		slog.String("transfer_id", transfer.ID),
		slog.String("transfer_tx", record.TransferTxHash),
		slog.String("source", record.SourceSymbol),
		slog.String("target", record.TargetSymbol),
		slog.String("amount_units", record.AmountUnits),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, transfer *Transfer, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTransferProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := transfer.Attempts >= transfer.MaxRetries || !retryable

	// 链上失败没有降级结果可言，补偿只做善后，失败仍照常落库。
	if !retryable && p.recovery != nil {
		if recErr := p.recovery.Recover(ctx, transfer, execErr); recErr != nil {
			wrapped := xerrors.Wrap(CodeTransferCompensate, recErr, "汇款补偿失败")
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", wrapped),
				slog.String("transfer_id", transfer.ID))
			p.emitAlert(ctx, transfer, CodeTransferCompensate, wrapped, "compensate")
		}
	}

	if storeErr := p.store.MarkFailed(ctx, transfer.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记汇款失败状态出错", slog.Any("error", storeErr), slog.String("transfer_id", transfer.ID))
		return storeErr
	}
	if terminal {
		metrics.ObserveTransfer(string(StatusFailed))
	}
	logger.Audit().Warn("汇款执行失败",
		slog.String("transfer_id", transfer.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", transfer.Attempts),
		slog.Int("max_retries", transfer.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, transfer, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, transfer.ID); pubErr != nil {
			return xerrors.Wrap(CodeTransferPublish, pubErr, fmt.Sprintf("汇款 %s 重投失败", transfer.ID))
		}
		p.logDebug("汇款已重新排队", slog.String("transfer_id", transfer.ID), slog.Int("attempts", transfer.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, transfer *Transfer, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || transfer == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TransferID: transfer.ID,
		Attempts:   transfer.Attempts,
		MaxRetries: transfer.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("transfer_id", transfer.ID),
			slog.String("stage", stage),
		)
	}
}
