// Package quote 封装结算合约的只读报价查询。
// 报价与其三个决定性输入绑定，任一输入变化时旧报价立即作废。
package quote

import (
	"context"
	"math/big"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Backend 是报价查询依赖的链上只读入口。
type Backend interface {
	GetQuote(ctx context.Context, sourceToken, targetToken common.Address, amount *big.Int) (*web3.Quote, error)
}

// Result 是一次有效的报价，连同决定它的三个输入一起返回。
type Result struct {
	SourceToken  common.Address
	TargetToken  common.Address
	SourceAmount *big.Int

	TargetAmount *big.Int
	Fee          *big.Int
	ExchangeRate *big.Int
}

// Matches 判断报价是否仍然对应给定的输入组合。
func (r *Result) Matches(sourceToken, targetToken common.Address, amount *big.Int) bool {
	if r == nil || amount == nil || r.SourceAmount == nil {
		return false
	}
	return r.SourceToken == sourceToken &&
		r.TargetToken == targetToken &&
		r.SourceAmount.Cmp(amount) == 0
}

// Estimator 查询并缓存单次报价。
type Estimator struct {
	backend Backend
}

// NewEstimator 创建报价器。
func NewEstimator(backend Backend) *Estimator {
	return &Estimator{backend: backend}
}

// GetQuote 查询一次报价。同币种或金额不为正时没有有意义的报价，
// 直接返回 nil 且不触达链上。
func (e *Estimator) GetQuote(ctx context.Context, sourceToken, targetToken common.Address, amount *big.Int) (*Result, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil
	}
	if sourceToken == targetToken {
		return nil, nil
	}

	raw, err := e.backend.GetQuote(ctx, sourceToken, targetToken, amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, "查询报价失败")
	}
	if raw == nil || raw.TargetAmount == nil {
		return nil, xerrors.New(xerrors.CodeQuoteUnavailable, "报价结果为空")
	}

	return &Result{
		SourceToken:  sourceToken,
		TargetToken:  targetToken,
		SourceAmount: new(big.Int).Set(amount),
		TargetAmount: new(big.Int).Set(raw.TargetAmount),
		Fee:          cloneOrZero(raw.Fee),
		ExchangeRate: cloneOrZero(raw.ExchangeRate),
	}, nil
}

func cloneOrZero(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value)
}
