package transfer

import (
	"context"
	stdErrors "errors"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
	"RemitChain/internal/observability/metrics"
	"RemitChain/internal/orchestrator"
)

// Executor 定义处理器执行一笔汇款所需的能力。
type Executor interface {
	Execute(ctx context.Context, transfer *Transfer) (*Receipt, error)
}

// Remitter 将排队的汇款交给意图解析与链上编排执行。
type Remitter struct {
	parser  *intent.Parser
	orch    *orchestrator.Orchestrator
	chainID string
}

var _ Executor = (*Remitter)(nil)

// NewRemitter 构造默认执行器。chainID 用于回执标注来源链。
func NewRemitter(parser *intent.Parser, orch *orchestrator.Orchestrator, chainID string) *Remitter {
	return &Remitter{parser: parser, orch: orch, chainID: chainID}
}

// Execute 解析汇款意图（如有必要）并在链上执行。
// 意图解析失败不可重试，用户需要改写原始请求。
func (r *Remitter) Execute(ctx context.Context, transfer *Transfer) (*Receipt, error) {
	if r == nil || r.orch == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "汇款执行器未初始化")
	}
	in := transfer.Intent
	if in == nil {
		if r.parser == nil {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "汇款执行器未配置意图解析")
		}
		parsed, err := r.parser.Parse(ctx, transfer.Message)
		metrics.ObserveParse("queue", err == nil)
		if err != nil {
			var failure *intent.ParseFailure
			if stdErrors.As(err, &failure) {
				return nil, xerrors.Wrap(xerrors.CodeParseFailure, err, "无法从文本解析汇款意图")
			}
			return nil, err
		}
		in = parsed
	}

	outcome, err := r.orch.Execute(ctx, in, transfer.RecipientAddress)
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{
		TransferTxHash: outcome.TransferTxHash,
		ApprovalTxHash: outcome.ApprovalTxHash,
		SourceSymbol:   outcome.SourceSymbol,
		TargetSymbol:   outcome.TargetSymbol,
		ChainID:        r.chainID,
	}
	if outcome.AmountUnits != nil {
		receipt.AmountUnits = outcome.AmountUnits.String()
	}
	if outcome.MinTargetUnits != nil {
		receipt.MinTargetUnits = outcome.MinTargetUnits.String()
	}
	if q := outcome.Quote; q != nil {
		if q.TargetAmount != nil {
			receipt.QuoteTargetUnits = q.TargetAmount.String()
		}
		if q.Fee != nil {
			receipt.QuoteFeeUnits = q.Fee.String()
		}
		if q.ExchangeRate != nil {
			receipt.QuoteRate = q.ExchangeRate.String()
		}
	}
	return receipt, nil
}
