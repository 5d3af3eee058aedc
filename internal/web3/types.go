package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Quote reports the settlement contract's pricing for a currency pair.
// All values are in base token units.
type Quote struct {
	TargetAmount *big.Int
	Fee          *big.Int
	ExchangeRate *big.Int
}

// RemittanceCall carries the parameters of an on-chain remittance execution.
type RemittanceCall struct {
	Recipient       common.Address
	SourceToken     common.Address
	TargetToken     common.Address
	SourceAmount    *big.Int
	MinTargetAmount *big.Int
	Memo            string
}

// PendingTx represents a submitted transaction awaiting confirmation.
type PendingTx interface {
	// Hash returns the transaction hash.
	Hash() common.Hash
	// Wait blocks until the transaction is mined and returns an error if it
	// reverted or could not be confirmed.
	Wait(ctx context.Context) error
}

// Client defines the chain operations the orchestrator depends on so higher
// layers can interact with different networks uniformly.
type Client interface {
	// ChainID returns the connected chain's identifier.
	ChainID() *big.Int
	// SignerAddress returns the address transactions are sent from.
	// The zero address means the client is read-only.
	SignerAddress() common.Address
	// SettlementAddress returns the remittance settlement contract address.
	SettlementAddress() common.Address

	// BalanceOf reads an ERC20 balance.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	// Allowance reads the ERC20 allowance granted to the settlement contract.
	Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	// Approve submits an ERC20 approval for the settlement contract.
	Approve(ctx context.Context, token common.Address, amount *big.Int) (PendingTx, error)

	// GetQuote calls the settlement contract's read-only pricing entry point.
	GetQuote(ctx context.Context, sourceToken, targetToken common.Address, amount *big.Int) (*Quote, error)
	// ExecuteRemittance submits the remittance transaction.
	ExecuteRemittance(ctx context.Context, call RemittanceCall) (PendingTx, error)
	// UserRemittances returns the settlement contract's remittance ids for a user.
	UserRemittances(ctx context.Context, user common.Address) ([][32]byte, error)

	// Close releases network connections held by the client.
	Close()
}
