// Package transfer 管理汇款动作的排队、持久化与执行。
// 一条 Transfer 记录对应一次用户发起的汇款请求，从入队到链上确认
// 的全过程状态都落在存储里。
package transfer

import (
	stdErrors "errors"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
)

// Status 表示汇款在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Receipt 保存一次汇款执行成功后的链上凭据。
// Quote 字段记录执行时刻的报价上下文，供历史查询展示预计到账与费用。
type Receipt struct {
	TransferTxHash   string `json:"transfer_tx_hash"`
	ApprovalTxHash   string `json:"approval_tx_hash,omitempty"`
	SourceSymbol     string `json:"source_symbol"`
	TargetSymbol     string `json:"target_symbol"`
	AmountUnits      string `json:"amount_units"`
	MinTargetUnits   string `json:"min_target_units"`
	QuoteTargetUnits string `json:"quote_target_units,omitempty"`
	QuoteFeeUnits    string `json:"quote_fee_units,omitempty"`
	QuoteRate        string `json:"quote_rate,omitempty"`
	ChainID          string `json:"chain_id"`
}

// Transfer 描述一次排队执行的汇款动作。
type Transfer struct {
	ID               string         `json:"id"`
	Message          string         `json:"message"`
	Intent           *intent.Intent `json:"intent,omitempty"`
	RecipientAddress string         `json:"recipient_address"`
	Status           Status         `json:"status"`
	Attempts         int            `json:"attempts"`
	MaxRetries       int            `json:"max_retries"`
	LastError        string         `json:"last_error,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	Result           *Receipt       `json:"result,omitempty"`
	CreatedAt        int64          `json:"created_at"`
	UpdatedAt        int64          `json:"updated_at"`
}

var (
	// ErrTransferNotFound 表示指定的汇款不存在。
	ErrTransferNotFound = xerrors.New(CodeTransferNotFound, "transfer not found")
	// ErrTransferConflict 表示汇款在当前状态下无法进行所请求的操作。
	ErrTransferConflict = xerrors.New(CodeTransferConflict, "transfer conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTransferCompleted 表示汇款已经成功完成。
	ErrTransferCompleted = xerrors.New(CodeTransferCompleted, "transfer already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTransferExhausted 表示汇款的重试次数已经耗尽。
	ErrTransferExhausted = xerrors.New(CodeTransferExhausted, "transfer retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeTransferNotFound   xerrors.Code = "TRANSFER_NOT_FOUND"
	CodeTransferConflict   xerrors.Code = "TRANSFER_CONFLICT"
	CodeTransferCompleted  xerrors.Code = "TRANSFER_COMPLETED"
	CodeTransferExhausted  xerrors.Code = "TRANSFER_RETRIES_EXHAUSTED"
	CodeTransferValidation xerrors.Code = "TRANSFER_VALIDATION_FAILED"
	CodeTransferPublish    xerrors.Code = "TRANSFER_PUBLISH_FAILED"
	CodeTransferProcessing xerrors.Code = "TRANSFER_PROCESSING_FAILED"
	CodeTransferCompensate xerrors.Code = "TRANSFER_COMPENSATE_FAILED"
)

func init() {
	xerrors.Register(CodeTransferNotFound, xerrors.Attributes{
		Message:   "transfer not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTransferConflict, xerrors.Attributes{
		Message:   "transfer conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTransferCompleted, xerrors.Attributes{
		Message:   "transfer already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTransferExhausted, xerrors.Attributes{
		Message:   "transfer retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeTransferValidation, xerrors.Attributes{
		Message:   "transfer validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTransferPublish, xerrors.Attributes{
		Message:   "failed to publish transfer",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTransferProcessing, xerrors.Attributes{
		Message:   "transfer execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTransferCompensate, xerrors.Attributes{
		Message:   "transfer compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsTransferError 判断错误是否为统一汇款错误。
func IsTransferError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrTransferNotFound) {
		return target == CodeTransferNotFound
	}
	if stdErrors.Is(err, ErrTransferConflict) {
		return target == CodeTransferConflict
	}
	if stdErrors.Is(err, ErrTransferCompleted) {
		return target == CodeTransferCompleted
	}
	if stdErrors.Is(err, ErrTransferExhausted) {
		return target == CodeTransferExhausted
	}
	return false
}

// IsValidStatus 检查给定的汇款状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneIntent(in *intent.Intent) *intent.Intent {
	if in == nil {
		return nil
	}
	clone := *in
	return &clone
}
