// Package orchestrator 驱动一次汇款从意图到链上确认的完整状态机。
// 同一实例同一时刻只允许一个在途动作，授权确认到转账提交的过渡
// 受单次触发保护，重复的确认通知不会产生第二笔转账。
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"RemitChain/internal/currency"
	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
	"RemitChain/internal/quote"
	"RemitChain/internal/web3"
	"RemitChain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// State 表示一次在途汇款所处的阶段。
type State string

const (
	StateIdle              State = "idle"
	StateQuoteLoading      State = "quote_loading"
	StateAwaitingApproval  State = "awaiting_approval"
	StateApprovalPending   State = "approval_pending"
	StateApprovalConfirmed State = "approval_confirmed"
	StateTransferPending   State = "transfer_pending"
	StateTransferConfirmed State = "transfer_confirmed"
	StateFailed            State = "failed"
)

// 授权金额在实际需要之上的缓冲比例（110/100），
// 降低近期等额汇款重复弹出授权的概率。
var (
	approvalBufferNum = big.NewInt(110)
	approvalBufferDen = big.NewInt(100)
)

// 无报价时最小到账金额的兜底比例（95/100），即 5% 滑点容忍。
var (
	slippageFloorNum = big.NewInt(95)
	slippageFloorDen = big.NewInt(100)
)

// Outcome 是一次成功汇款的结果。
type Outcome struct {
	TransferTxHash string         `json:"transferTxHash"`
	ApprovalTxHash string         `json:"approvalTxHash,omitempty"`
	SourceSymbol   string         `json:"sourceSymbol"`
	TargetSymbol   string         `json:"targetSymbol"`
	AmountUnits    *big.Int       `json:"amountUnits"`
	MinTargetUnits *big.Int       `json:"minTargetUnits"`
	Quote          *quote.Result  `json:"-"`
	Recipient      common.Address `json:"recipient"`
}

// transferPlan 汇集一次转账提交所需的全部输入。
type transferPlan struct {
	recipient      common.Address
	sourceToken    common.Address
	targetToken    common.Address
	amountUnits    *big.Int
	minTargetUnits *big.Int
	liveQuote      *quote.Result
	memo           string
}

// Orchestrator 对单个钱包串行执行汇款动作。
type Orchestrator struct {
	client    web3.Client
	registry  *currency.Registry
	estimator *quote.Estimator
	logger    *slog.Logger

	mu sync.Mutex
	// state 与单次触发保护由当前在途动作独占，
	// 新动作只能从 Idle 或终态启动。
	state             State
	transferSubmitted bool
}

// New 创建编排器。
func New(client web3.Client, registry *currency.Registry, estimator *quote.Estimator) *Orchestrator {
	return &Orchestrator{
		client:    client,
		registry:  registry,
		estimator: estimator,
		logger:    logger.Named("orchestrator"),
		state:     StateIdle,
	}
}

// State 返回当前状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset 把状态机恢复到 Idle 并清除单次触发保护。
// 只有新的用户动作开始时才应调用。
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.transferSubmitted = false
}

// Execute 执行一次汇款：前置校验、报价、授权（如需要）、转账提交与确认。
// 任何失败都把状态恢复为 Idle 且不自动重试。
func (o *Orchestrator) Execute(ctx context.Context, in *intent.Intent, recipientAddress string) (*Outcome, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.Reset()

	plan, source, target, err := o.prepare(ctx, in, recipientAddress)
	if err != nil {
		o.fail()
		return nil, err
	}

	outcome := &Outcome{
		SourceSymbol:   source.Symbol,
		TargetSymbol:   target.Symbol,
		AmountUnits:    plan.amountUnits,
		MinTargetUnits: plan.minTargetUnits,
		Quote:          plan.liveQuote,
		Recipient:      plan.recipient,
	}

	allowance, err := o.client.Allowance(ctx, plan.sourceToken, o.client.SignerAddress())
	if err != nil {
		o.fail()
		return nil, xerrors.Wrap(xerrors.CodeOnChainFailure, err, "查询授权额度失败")
	}

	if allowance.Cmp(plan.amountUnits) < 0 {
		approvalHash, err := o.approve(ctx, plan)
		if err != nil {
			o.fail()
			return nil, err
		}
		outcome.ApprovalTxHash = approvalHash
	} else {
		o.setState(StateApprovalConfirmed)
	}

	transferHash, err := o.submitTransferOnce(ctx, plan)
	if err != nil {
		o.fail()
		return nil, err
	}
	outcome.TransferTxHash = transferHash

	o.setState(StateTransferConfirmed)
	o.logger.Info("汇款已确认",
		slog.String("transferTx", transferHash),
		slog.String("source", source.Symbol),
		slog.String("target", target.Symbol),
		slog.String("amountUnits", plan.amountUnits.String()))
	return outcome, nil
}

// begin 确认没有其他在途动作并清除上一轮的单次触发保护。
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateIdle, StateTransferConfirmed, StateFailed:
		o.state = StateQuoteLoading
		o.transferSubmitted = false
		return nil
	default:
		return xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("another remittance is in flight (state %s)", o.state))
	}
}

// prepare 执行前置校验并计算转账计划。这一阶段的失败都是本地失败。
func (o *Orchestrator) prepare(ctx context.Context, in *intent.Intent, recipientAddress string) (*transferPlan, currency.Descriptor, currency.Descriptor, error) {
	var none currency.Descriptor

	signer := o.client.SignerAddress()
	if signer == (common.Address{}) {
		return nil, none, none, rejection("wallet not connected")
	}
	if !common.IsHexAddress(recipientAddress) {
		return nil, none, none, rejection("recipient address is not a valid address")
	}
	if in == nil || in.Amount <= 0 {
		return nil, none, none, rejection("amount must be greater than zero")
	}
	if in.SourceCurrency == in.TargetCurrency {
		return nil, none, none, rejection("source and target currency must differ")
	}

	source, ok := o.registry.BySymbol(in.SourceCurrency)
	if !ok || !source.Active {
		return nil, none, none, rejection("source currency is not available")
	}
	target, ok := o.registry.BySymbol(in.TargetCurrency)
	if !ok || !target.Active {
		return nil, none, none, rejection("target currency is not available")
	}

	amountUnits, err := currency.ToUnits(in.Amount, source.Decimals)
	if err != nil {
		return nil, none, none, rejection("amount could not be converted to token units")
	}

	// 余额未知不拦截：非活跃代币可能查不到余额。
	if balance, err := o.client.BalanceOf(ctx, source.TokenAddress(), signer); err != nil {
		o.logger.Debug("余额查询失败，跳过余额前置校验", slog.String("error", err.Error()))
	} else if balance.Cmp(amountUnits) < 0 {
		return nil, none, none, rejection("insufficient balance for the requested amount")
	}

	liveQuote, err := o.estimator.GetQuote(ctx, source.TokenAddress(), target.TokenAddress(), amountUnits)
	if err != nil {
		// 报价不可用不阻塞用户，退回静态滑点兜底。
		o.logger.Warn("报价不可用，使用滑点兜底", slog.String("error", err.Error()))
		liveQuote = nil
	}

	return &transferPlan{
		recipient:      common.HexToAddress(recipientAddress),
		sourceToken:    source.TokenAddress(),
		targetToken:    target.TokenAddress(),
		amountUnits:    amountUnits,
		minTargetUnits: minTargetUnits(liveQuote, amountUnits),
		liveQuote:      liveQuote,
		memo:           in.Memo,
	}, source, target, nil
}

// minTargetUnits 计算最小到账金额：优先采用实时报价，
// 否则按 5% 滑点容忍取兜底值，且永不为零。
func minTargetUnits(liveQuote *quote.Result, amountUnits *big.Int) *big.Int {
	if liveQuote != nil && liveQuote.TargetAmount != nil && liveQuote.TargetAmount.Sign() > 0 {
		return new(big.Int).Set(liveQuote.TargetAmount)
	}
	floor := new(big.Int).Mul(amountUnits, slippageFloorNum)
	floor.Div(floor, slippageFloorDen)
	if floor.Sign() <= 0 {
		floor = big.NewInt(1)
	}
	return floor
}

// approve 提交授权交易并等待确认。授权金额带 10% 缓冲。
func (o *Orchestrator) approve(ctx context.Context, plan *transferPlan) (string, error) {
	approvalUnits := new(big.Int).Mul(plan.amountUnits, approvalBufferNum)
	approvalUnits.Div(approvalUnits, approvalBufferDen)

	o.setState(StateAwaitingApproval)
	tx, err := o.client.Approve(ctx, plan.sourceToken, approvalUnits)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeOnChainFailure, err, "approval transaction rejected")
	}
	o.setState(StateApprovalPending)

	o.logger.Info("授权交易已提交",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("approvalUnits", approvalUnits.String()))

	if err := tx.Wait(ctx); err != nil {
		return "", xerrors.Wrap(xerrors.CodeOnChainFailure, err, "approval transaction failed")
	}
	o.setState(StateApprovalConfirmed)
	return tx.Hash().Hex(), nil
}

// submitTransferOnce 在 ApprovalConfirmed 之后提交转账，受单次触发保护：
// 同一动作内无论确认通知到达多少次，转账只会提交一次。
func (o *Orchestrator) submitTransferOnce(ctx context.Context, plan *transferPlan) (string, error) {
	o.mu.Lock()
	if o.transferSubmitted {
		o.mu.Unlock()
		o.logger.Warn("忽略重复的授权确认通知")
		return "", nil
	}
	o.transferSubmitted = true
	o.state = StateTransferPending
	o.mu.Unlock()

	tx, err := o.client.ExecuteRemittance(ctx, web3.RemittanceCall{
		Recipient:       plan.recipient,
		SourceToken:     plan.sourceToken,
		TargetToken:     plan.targetToken,
		SourceAmount:    plan.amountUnits,
		MinTargetAmount: plan.minTargetUnits,
		Memo:            plan.memo,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeOnChainFailure, err, "transfer transaction rejected")
	}

	o.logger.Info("转账交易已提交", slog.String("tx", tx.Hash().Hex()))

	if err := tx.Wait(ctx); err != nil {
		return "", xerrors.Wrap(xerrors.CodeOnChainFailure, err, "transfer transaction failed")
	}
	return tx.Hash().Hex(), nil
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) fail() {
	o.setState(StateFailed)
}

func rejection(reason string) error {
	return xerrors.New(xerrors.CodePreconditionRejected, reason)
}
