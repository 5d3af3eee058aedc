package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"RemitChain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name              string
	RPCURL            string
	SettlementAddress string
	SignerKeyHex      string
	Notes             string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name       string
	notes      string
	rpcClient  *gethrpc.Client
	eth        *ethclient.Client
	chainID    *big.Int
	settlement common.Address

	settlementABI      abi.ABI
	erc20ABI           abi.ABI
	settlementContract *bind.BoundContract

	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address

	// txMu serializes transaction submission so nonce allocation stays ordered.
	txMu sync.Mutex

	mu     sync.Mutex
	erc20  map[common.Address]*bind.BoundContract
	closed bool
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链的 RPC 地址")
	}
	settlementHex := strings.TrimSpace(cfg.SettlementAddress)
	if !common.IsHexAddress(settlementHex) {
		return nil, fmt.Errorf("结算合约地址无效: %q", cfg.SettlementAddress)
	}

	settlementABI, err := abi.JSON(strings.NewReader(settlementABIJSON))
	if err != nil {
		return nil, fmt.Errorf("解析结算合约 ABI 失败: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("解析 ERC20 ABI 失败: %w", err)
	}

	var signerKey *ecdsa.PrivateKey
	var signerAddr common.Address
	if keyHex := strings.TrimSpace(cfg.SignerKeyHex); keyHex != "" {
		signerKey, err = crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("解析签名私钥失败: %w", err)
		}
		signerAddr = crypto.PubkeyToAddress(signerKey.PublicKey)
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	settlement := common.HexToAddress(settlementHex)
	client := &Client{
		name:          cfg.Name,
		notes:         cfg.Notes,
		rpcClient:     rpcClient,
		eth:           eth,
		chainID:       chainID,
		settlement:    settlement,
		settlementABI: settlementABI,
		erc20ABI:      erc20ABI,
		erc20:         make(map[common.Address]*bind.BoundContract),
		signerKey:     signerKey,
		signerAddr:    signerAddr,
	}
	client.settlementContract = bind.NewBoundContract(settlement, settlementABI, eth, eth, eth)
	return client, nil
}

// ChainID returns the connected chain's identifier.
func (c *Client) ChainID() *big.Int {
	if c == nil || c.chainID == nil {
		return nil
	}
	return new(big.Int).Set(c.chainID)
}

// SignerAddress returns the address transactions are sent from.
func (c *Client) SignerAddress() common.Address {
	if c == nil {
		return common.Address{}
	}
	return c.signerAddr
}

// SettlementAddress returns the remittance settlement contract address.
func (c *Client) SettlementAddress() common.Address {
	if c == nil {
		return common.Address{}
	}
	return c.settlement
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.eth != nil {
		c.eth.Close()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) erc20Contract(token common.Address) *bind.BoundContract {
	c.mu.Lock()
	defer c.mu.Unlock()
	if contract, ok := c.erc20[token]; ok {
		return contract
	}
	contract := bind.NewBoundContract(token, c.erc20ABI, c.eth, c.eth, c.eth)
	c.erc20[token] = contract
	return contract
}

// BalanceOf reads an ERC20 balance.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out []any
	err := c.erc20Contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return unpackBig(out, 0)
}

// Allowance reads the ERC20 allowance granted to the settlement contract.
func (c *Client) Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out []any
	err := c.erc20Contract(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, c.settlement)
	if err != nil {
		return nil, fmt.Errorf("查询授权额度失败: %w", err)
	}
	return unpackBig(out, 0)
}

// Approve submits an ERC20 approval for the settlement contract.
func (c *Client) Approve(ctx context.Context, token common.Address, amount *big.Int) (web3.PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	c.txMu.Lock()
	tx, err := c.erc20Contract(token).Transact(opts, "approve", c.settlement, amount)
	c.txMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("提交授权交易失败: %w", err)
	}
	return &pendingTx{tx: tx, backend: c.eth}, nil
}

// GetQuote calls the settlement contract's read-only pricing entry point.
func (c *Client) GetQuote(ctx context.Context, sourceToken, targetToken common.Address, amount *big.Int) (*web3.Quote, error) {
	var out []any
	err := c.settlementContract.Call(&bind.CallOpts{Context: ctx}, &out, "getQuote", sourceToken, targetToken, amount)
	if err != nil {
		return nil, fmt.Errorf("查询报价失败: %w", err)
	}
	if len(out) < 3 {
		return nil, fmt.Errorf("报价返回值数量异常: %d", len(out))
	}
	targetAmount, err := unpackBig(out, 0)
	if err != nil {
		return nil, err
	}
	fee, err := unpackBig(out, 1)
	if err != nil {
		return nil, err
	}
	rate, err := unpackBig(out, 2)
	if err != nil {
		return nil, err
	}
	return &web3.Quote{TargetAmount: targetAmount, Fee: fee, ExchangeRate: rate}, nil
}

// ExecuteRemittance submits the remittance transaction.
func (c *Client) ExecuteRemittance(ctx context.Context, call web3.RemittanceCall) (web3.PendingTx, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	c.txMu.Lock()
	tx, err := c.settlementContract.Transact(opts, "executeRemittance",
		call.Recipient, call.SourceToken, call.TargetToken,
		call.SourceAmount, call.MinTargetAmount, call.Memo)
	c.txMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("提交汇款交易失败: %w", err)
	}
	return &pendingTx{tx: tx, backend: c.eth}, nil
}

// UserRemittances returns the settlement contract's remittance ids for a user.
func (c *Client) UserRemittances(ctx context.Context, user common.Address) ([][32]byte, error) {
	var out []any
	err := c.settlementContract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserRemittances", user)
	if err != nil {
		return nil, fmt.Errorf("查询历史汇款失败: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	ids, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("历史汇款返回值类型异常: %T", out[0])
	}
	return ids, nil
}

func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.signerKey == nil {
		return nil, errors.New("客户端未配置签名私钥，无法发送交易")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.signerKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("创建交易签名器失败: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func unpackBig(out []any, idx int) (*big.Int, error) {
	if idx >= len(out) {
		return nil, fmt.Errorf("合约返回值缺少第 %d 项", idx)
	}
	value, ok := out[idx].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("合约返回值类型异常: %T", out[idx])
	}
	return value, nil
}

// pendingTx wraps a submitted transaction and its confirmation backend.
type pendingTx struct {
	tx      *coretypes.Transaction
	backend bind.DeployBackend
}

var _ web3.PendingTx = (*pendingTx)(nil)

// Hash returns the transaction hash.
func (p *pendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

// Wait blocks until the transaction is mined.
func (p *pendingTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return fmt.Errorf("等待交易确认失败: %w", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return fmt.Errorf("交易 %s 已上链但执行回滚", p.tx.Hash().Hex())
	}
	return nil
}
