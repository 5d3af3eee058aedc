package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"RemitChain/internal/currency"
	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
	"RemitChain/internal/quote"
	"RemitChain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const (
	signerHex    = "0x1111111111111111111111111111111111111111"
	recipientHex = "0x2222222222222222222222222222222222222222"
)

type stubTx struct {
	hash    common.Hash
	waitErr error
}

func (s *stubTx) Hash() common.Hash            { return s.hash }
func (s *stubTx) Wait(_ context.Context) error { return s.waitErr }

type stubChain struct {
	signer    common.Address
	balance   *big.Int
	allowance *big.Int
	quote     *web3.Quote
	quoteErr  error

	approveErr  error
	executeErr  error
	approveWait error

	approveCalls []*big.Int
	executeCalls []web3.RemittanceCall
	quoteCalls   int
	balanceErr   error
	allowanceErr error
}

func (s *stubChain) ChainID() *big.Int                 { return big.NewInt(42220) }
func (s *stubChain) SignerAddress() common.Address     { return s.signer }
func (s *stubChain) SettlementAddress() common.Address { return common.Address{} }
func (s *stubChain) Close()                            {}

func (s *stubChain) BalanceOf(_ context.Context, _, _ common.Address) (*big.Int, error) {
	if s.balanceErr != nil {
		return nil, s.balanceErr
	}
	return s.balance, nil
}

func (s *stubChain) Allowance(_ context.Context, _, _ common.Address) (*big.Int, error) {
	if s.allowanceErr != nil {
		return nil, s.allowanceErr
	}
	return s.allowance, nil
}

func (s *stubChain) Approve(_ context.Context, _ common.Address, amount *big.Int) (web3.PendingTx, error) {
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	s.approveCalls = append(s.approveCalls, new(big.Int).Set(amount))
	return &stubTx{hash: common.HexToHash("0xaa"), waitErr: s.approveWait}, nil
}

func (s *stubChain) GetQuote(_ context.Context, _, _ common.Address, _ *big.Int) (*web3.Quote, error) {
	s.quoteCalls++
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return s.quote, nil
}

func (s *stubChain) ExecuteRemittance(_ context.Context, call web3.RemittanceCall) (web3.PendingTx, error) {
	if s.executeErr != nil {
		return nil, s.executeErr
	}
	s.executeCalls = append(s.executeCalls, call)
	return &stubTx{hash: common.HexToHash("0xbb")}, nil
}

func (s *stubChain) UserRemittances(_ context.Context, _ common.Address) ([][32]byte, error) {
	return nil, nil
}

var _ web3.Client = (*stubChain)(nil)

func units(value string) *big.Int {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("bad units literal: " + value)
	}
	return parsed
}

func sendIntent(amount float64) *intent.Intent {
	return &intent.Intent{
		Action:         intent.ActionSend,
		Amount:         amount,
		SourceCurrency: "cUSD",
		TargetCurrency: "cKES",
		RecipientType:  intent.RecipientTypeAddress,
		Confidence:     0.7,
	}
}

func newOrchestrator(chain *stubChain) *Orchestrator {
	return New(chain, currency.NewRegistry(), quote.NewEstimator(chain))
}

func TestExecuteWithApprovalBuffer(t *testing.T) {
	chain := &stubChain{
		signer:    common.HexToAddress(signerHex),
		balance:   units("100000000000000000000"),
		allowance: big.NewInt(0),
		quoteErr:  errors.New("oracle down"),
	}
	orch := newOrchestrator(chain)

	outcome, err := orch.Execute(context.Background(), sendIntent(50), recipientHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chain.approveCalls) != 1 {
		t.Fatalf("expected one approval, got %d", len(chain.approveCalls))
	}
	// 50 单位授权放大 10%：55 单位。
	if chain.approveCalls[0].Cmp(units("55000000000000000000")) != 0 {
		t.Fatalf("unexpected approval amount: %s", chain.approveCalls[0])
	}

	if len(chain.executeCalls) != 1 {
		t.Fatalf("expected one transfer, got %d", len(chain.executeCalls))
	}
	call := chain.executeCalls[0]
	if call.SourceAmount.Cmp(units("50000000000000000000")) != 0 {
		t.Fatalf("transfer must use the unbuffered amount, got %s", call.SourceAmount)
	}
	// 无报价时按 5% 滑点兜底：47.5 单位。
	if call.MinTargetAmount.Cmp(units("47500000000000000000")) != 0 {
		t.Fatalf("unexpected slippage floor: %s", call.MinTargetAmount)
	}
	if outcome.ApprovalTxHash == "" || outcome.TransferTxHash == "" {
		t.Fatalf("outcome missing tx hashes: %+v", outcome)
	}
	if orch.State() != StateIdle {
		t.Fatalf("state must reset to idle, got %s", orch.State())
	}
}

func TestExecuteUsesLiveQuote(t *testing.T) {
	target := units("6400000000000000000000")
	chain := &stubChain{
		signer:    common.HexToAddress(signerHex),
		balance:   units("100000000000000000000"),
		allowance: units("100000000000000000000"),
		quote:     &web3.Quote{TargetAmount: target, Fee: big.NewInt(1), ExchangeRate: big.NewInt(128)},
	}
	orch := newOrchestrator(chain)

	_, err := orch.Execute(context.Background(), sendIntent(50), recipientHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chain.approveCalls) != 0 {
		t.Fatalf("sufficient allowance must skip approval")
	}
	call := chain.executeCalls[0]
	if call.MinTargetAmount.Cmp(target) != 0 {
		t.Fatalf("min target must come from live quote, got %s", call.MinTargetAmount)
	}
}

func TestMinTargetNeverZeroNorAboveQuote(t *testing.T) {
	amount := units("50000000000000000000")

	liveQuote := &quote.Result{TargetAmount: units("48000000000000000000")}
	if got := minTargetUnits(liveQuote, amount); got.Cmp(liveQuote.TargetAmount) > 0 {
		t.Fatalf("min target exceeds quote target: %s", got)
	}

	if got := minTargetUnits(nil, amount); got.Sign() <= 0 {
		t.Fatalf("min target must be positive, got %s", got)
	}
	if got := minTargetUnits(nil, big.NewInt(1)); got.Sign() <= 0 {
		t.Fatalf("min target for dust amount must be positive, got %s", got)
	}
}

func TestDuplicateApprovalConfirmationSubmitsOnce(t *testing.T) {
	chain := &stubChain{
		signer:    common.HexToAddress(signerHex),
		balance:   units("100000000000000000000"),
		allowance: big.NewInt(0),
	}
	orch := newOrchestrator(chain)
	if err := orch.begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	orch.setState(StateApprovalConfirmed)

	plan := &transferPlan{
		recipient:      common.HexToAddress(recipientHex),
		amountUnits:    units("50000000000000000000"),
		minTargetUnits: units("47500000000000000000"),
	}

	if _, err := orch.submitTransferOnce(context.Background(), plan); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if _, err := orch.submitTransferOnce(context.Background(), plan); err != nil {
		t.Fatalf("duplicate confirmation must be ignored, got %v", err)
	}
	if len(chain.executeCalls) != 1 {
		t.Fatalf("expected exactly one transfer submission, got %d", len(chain.executeCalls))
	}
}

func TestPreconditionRejections(t *testing.T) {
	base := func() *stubChain {
		return &stubChain{
			signer:    common.HexToAddress(signerHex),
			balance:   units("100000000000000000000"),
			allowance: big.NewInt(0),
		}
	}

	cases := []struct {
		name      string
		chain     *stubChain
		in        *intent.Intent
		recipient string
	}{
		{"wallet not connected", &stubChain{}, sendIntent(50), recipientHex},
		{"bad recipient", base(), sendIntent(50), "not-an-address"},
		{"zero amount", base(), sendIntent(0), recipientHex},
		{"same currencies", base(), &intent.Intent{Amount: 5, SourceCurrency: "cUSD", TargetCurrency: "cUSD"}, recipientHex},
		{"insufficient balance", &stubChain{
			signer:    common.HexToAddress(signerHex),
			balance:   units("1000000000000000000"),
			allowance: big.NewInt(0),
		}, sendIntent(50), recipientHex},
	}

	for _, tc := range cases {
		orch := newOrchestrator(tc.chain)
		_, err := orch.Execute(context.Background(), tc.in, tc.recipient)
		if xerrors.CodeOf(err) != xerrors.CodePreconditionRejected {
			t.Fatalf("%s: expected PRECONDITION_REJECTED, got %v", tc.name, err)
		}
		if len(tc.chain.executeCalls) != 0 || len(tc.chain.approveCalls) != 0 {
			t.Fatalf("%s: no on-chain writes may happen after a rejection", tc.name)
		}
	}
}

func TestUnknownBalanceDoesNotBlock(t *testing.T) {
	chain := &stubChain{
		signer:     common.HexToAddress(signerHex),
		balanceErr: errors.New("balance lookup unavailable"),
		allowance:  units("100000000000000000000"),
	}
	orch := newOrchestrator(chain)

	if _, err := orch.Execute(context.Background(), sendIntent(50), recipientHex); err != nil {
		t.Fatalf("unknown balance must not block: %v", err)
	}
}

func TestOnChainFailureSurfacedVerbatim(t *testing.T) {
	chain := &stubChain{
		signer:     common.HexToAddress(signerHex),
		balance:    units("100000000000000000000"),
		allowance:  big.NewInt(0),
		executeErr: errors.New("insufficient funds for gas * price + value"),
	}
	orch := newOrchestrator(chain)

	_, err := orch.Execute(context.Background(), sendIntent(50), recipientHex)
	if xerrors.CodeOf(err) != xerrors.CodeOnChainFailure {
		t.Fatalf("expected ONCHAIN_FAILURE, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient funds for gas") {
		t.Fatalf("underlying message must be surfaced verbatim, got %q", err.Error())
	}
	if xerrors.RetryableError(err) {
		t.Fatalf("on-chain failures must not be auto-retryable")
	}
	if orch.State() != StateIdle {
		t.Fatalf("state must reset to idle after failure, got %s", orch.State())
	}
}

func TestApprovalWaitFailure(t *testing.T) {
	chain := &stubChain{
		signer:      common.HexToAddress(signerHex),
		balance:     units("100000000000000000000"),
		allowance:   big.NewInt(0),
		approveWait: errors.New("transaction reverted"),
	}
	orch := newOrchestrator(chain)

	_, err := orch.Execute(context.Background(), sendIntent(50), recipientHex)
	if xerrors.CodeOf(err) != xerrors.CodeOnChainFailure {
		t.Fatalf("expected ONCHAIN_FAILURE, got %v", err)
	}
	if len(chain.executeCalls) != 0 {
		t.Fatalf("transfer must not be submitted when approval fails")
	}
}
