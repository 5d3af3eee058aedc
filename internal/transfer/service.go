package transfer

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
	"RemitChain/pkg/logger"
)

// SubmitRequest 描述一次汇款提交。Message 与 Intent 至少提供一个：
// 只给 Message 时由处理器在执行阶段解析意图。
type SubmitRequest struct {
	ID               string
	Message          string
	Intent           *intent.Intent
	RecipientAddress string
}

// Service 负责汇款的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造汇款服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的汇款并推送到队列。相同 ID 的重复提交
// 返回已有记录，不会产生第二笔汇款。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Transfer, error) {
	if strings.TrimSpace(req.Message) == "" && req.Intent == nil {
		return nil, xerrors.New(CodeTransferValidation, "汇款请求必须携带文本或意图")
	}
	if strings.TrimSpace(req.RecipientAddress) == "" {
		return nil, xerrors.New(CodeTransferValidation, "收款地址不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "汇款服务未初始化")
	}

	transferID := strings.TrimSpace(req.ID)
	if transferID != "" {
		transfer, err := s.store.Get(ctx, transferID)
		if err == nil {
			return transfer, nil
		}
		if !stdErrors.Is(err, ErrTransferNotFound) {
			return nil, err
		}
	} else {
		transferID = uuid.NewString()
	}

	transfer := &Transfer{
		ID:               transferID,
		Message:          req.Message,
		Intent:           cloneIntent(req.Intent),
		RecipientAddress: req.RecipientAddress,
		Status:           StatusPending,
		Attempts:         0,
		MaxRetries:       s.maxRetries,
	}
	if err := s.store.Create(ctx, transfer); err != nil {
		if stdErrors.Is(err, ErrTransferConflict) {
			existing, getErr := s.store.Get(ctx, transferID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrTransferNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, transferID); err != nil {
		logger.L().Error("汇款入队失败", slog.Any("error", err), slog.String("transfer_id", transferID))
		wrapped := xerrors.Wrap(CodeTransferPublish, err, "发布汇款到队列失败")
		_ = s.store.MarkFailed(ctx, transferID, CodeTransferPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("汇款入队成功",
		slog.String("transfer_id", transferID),
		slog.String("recipient", transfer.RecipientAddress),
		slog.Int("max_retries", transfer.MaxRetries),
	)
	return transfer, nil
}

// Get 返回指定汇款的状态。
func (s *Service) Get(ctx context.Context, id string) (*Transfer, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "汇款存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的汇款列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Transfer, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "汇款存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的汇款统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "汇款存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询汇款状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Transfer, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		transfer, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if transfer.Status == StatusSucceeded || transfer.Status == StatusFailed {
			return transfer, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
