package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/types"
)

// erc20ABI covers the two token calls the storefront makes
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// nativeTransferGas is the fixed gas cost of a plain value transfer
const nativeTransferGas = 21000

// DefaultReceiptPollInterval is how often WaitForReceipt asks the node
const DefaultReceiptPollInterval = 2 * time.Second

var (
	addressPattern = regexp.MustCompile("^0x[a-fA-F0-9]{40}$")
	erc20          = mustParseABI(erc20ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// EthClient is the subset of ethclient.Client the adapter uses
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// EthereumAdapter implements ChainAdapter for EVM-compatible chains
type EthereumAdapter struct {
	chainID      types.ChainID
	client       EthClient
	pollInterval time.Duration
	logger       *logging.Logger
}

// NewEthereumAdapter dials rpcURL and returns an adapter for the chain
func NewEthereumAdapter(chainID types.ChainID, rpcURL string) (*EthereumAdapter, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, NewAdapterError(chainID, "NewEthereumAdapter", err, map[string]interface{}{
			"rpcURL": rpcURL,
		})
	}

	return NewEthereumAdapterWithClient(chainID, client), nil
}

// NewEthereumAdapterWithClient wraps an existing client
func NewEthereumAdapterWithClient(chainID types.ChainID, client EthClient) *EthereumAdapter {
	return &EthereumAdapter{
		chainID:      chainID,
		client:       client,
		pollInterval: DefaultReceiptPollInterval,
		logger:       logging.WithField("chainId", chainID.String()),
	}
}

// SetPollInterval changes how often WaitForReceipt polls
func (a *EthereumAdapter) SetPollInterval(d time.Duration) {
	if d > 0 {
		a.pollInterval = d
	}
}

// SendNative transfers wei from the wallet to an address
func (a *EthereumAdapter) SendNative(ctx context.Context, wallet Wallet, to string, wei *big.Int) (common.Hash, error) {
	if !a.ValidateAddress(to) {
		return common.Hash{}, NewAdapterError(a.chainID, "SendNative", ErrInvalidAddress, map[string]interface{}{
			"to": to,
		})
	}

	recipient := common.HexToAddress(to)
	return a.submit(ctx, "SendNative", wallet, recipient, wei, nil, nativeTransferGas)
}

// TransferToken calls transfer(to, units) on the token contract
func (a *EthereumAdapter) TransferToken(ctx context.Context, wallet Wallet, token string, to string, units *big.Int) (common.Hash, error) {
	if !a.ValidateAddress(token) || !a.ValidateAddress(to) {
		return common.Hash{}, NewAdapterError(a.chainID, "TransferToken", ErrInvalidAddress, map[string]interface{}{
			"token": token,
			"to":    to,
		})
	}

	data, err := erc20.Pack("transfer", common.HexToAddress(to), units)
	if err != nil {
		return common.Hash{}, NewAdapterError(a.chainID, "TransferToken", err, nil)
	}

	contract := common.HexToAddress(token)
	gas, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From: wallet.Address(),
		To:   &contract,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, NewAdapterError(a.chainID, "TransferToken", err, map[string]interface{}{
			"token": token,
		})
	}

	return a.submit(ctx, "TransferToken", wallet, contract, big.NewInt(0), data, gas)
}

// submit builds, signs and broadcasts a legacy transaction
func (a *EthereumAdapter) submit(ctx context.Context, op string, wallet Wallet, to common.Address, value *big.Int, data []byte, gas uint64) (common.Hash, error) {
	from := wallet.Address()

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, NewAdapterError(a.chainID, op, err, map[string]interface{}{"from": from.Hex()})
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, NewAdapterError(a.chainID, op, err, nil)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := wallet.SignTx(tx, big.NewInt(int64(a.chainID)))
	if err != nil {
		// signer errors pass through unwrapped so rejection stays recognizable
		return common.Hash{}, err
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, NewAdapterError(a.chainID, op, err, map[string]interface{}{
			"from": from.Hex(),
			"to":   to.Hex(),
		})
	}

	a.logger.WithFields(map[string]interface{}{
		"op":    op,
		"hash":  signed.Hash().Hex(),
		"from":  from.Hex(),
		"to":    to.Hex(),
		"nonce": nonce,
	}).Info("Transaction submitted")

	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done
func (a *EthereumAdapter) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return receipt, NewAdapterError(a.chainID, "WaitForReceipt", ErrTransactionReverted, map[string]interface{}{
					"hash":        hash.Hex(),
					"blockNumber": receipt.BlockNumber,
				})
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, NewAdapterError(a.chainID, "WaitForReceipt", err, map[string]interface{}{
				"hash": hash.Hex(),
			})
		}

		select {
		case <-ctx.Done():
			return nil, NewAdapterError(a.chainID, "WaitForReceipt", ctx.Err(), map[string]interface{}{
				"hash": hash.Hex(),
			})
		case <-ticker.C:
		}
	}
}

// TokenBalance returns balanceOf(owner) on the token contract
func (a *EthereumAdapter) TokenBalance(ctx context.Context, token string, owner string) (*big.Int, error) {
	if !a.ValidateAddress(token) || !a.ValidateAddress(owner) {
		return nil, NewAdapterError(a.chainID, "TokenBalance", ErrInvalidAddress, map[string]interface{}{
			"token": token,
			"owner": owner,
		})
	}

	data, err := erc20.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, NewAdapterError(a.chainID, "TokenBalance", err, nil)
	}

	contract := common.HexToAddress(token)
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "TokenBalance", err, map[string]interface{}{
			"token": token,
			"owner": owner,
		})
	}

	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result), nil
}

// NativeBalance returns the owner's balance in wei
func (a *EthereumAdapter) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	if !a.ValidateAddress(owner) {
		return nil, NewAdapterError(a.chainID, "NativeBalance", ErrInvalidAddress, map[string]interface{}{
			"owner": owner,
		})
	}

	balance, err := a.client.BalanceAt(ctx, common.HexToAddress(owner), nil)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "NativeBalance", err, map[string]interface{}{
			"owner": owner,
		})
	}
	return balance, nil
}

// VerifyTransfer fetches a transaction and checks it against the expected payment
func (a *EthereumAdapter) VerifyTransfer(ctx context.Context, hash common.Hash, expected ExpectedTransfer) (*Transfer, error) {
	tx, _, err := a.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			err = ErrTransactionNotFound
		}
		return nil, NewAdapterError(a.chainID, "VerifyTransfer", err, map[string]interface{}{
			"hash": hash.Hex(),
		})
	}

	transfer, err := a.decodeTransfer(tx)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "VerifyTransfer", err, map[string]interface{}{
			"hash": hash.Hex(),
		})
	}

	mismatch := func(reason string) error {
		return NewAdapterError(a.chainID, "VerifyTransfer", ErrTransferMismatch, map[string]interface{}{
			"hash":   hash.Hex(),
			"reason": reason,
		})
	}

	if expected.Token == "" {
		if transfer.Token != nil {
			return nil, mismatch("expected a native transfer")
		}
	} else if transfer.Token == nil || *transfer.Token != common.HexToAddress(expected.Token) {
		return nil, mismatch("wrong token contract")
	}
	if transfer.To != common.HexToAddress(expected.To) {
		return nil, mismatch("wrong recipient")
	}
	if expected.Amount != nil && transfer.Amount.Cmp(expected.Amount) < 0 {
		return nil, mismatch("amount below expected")
	}

	return transfer, nil
}

// decodeTransfer reads sender, recipient and amount from a native or ERC-20 transfer
func (a *EthereumAdapter) decodeTransfer(tx *ethtypes.Transaction) (*Transfer, error) {
	if tx.To() == nil {
		return nil, fmt.Errorf("contract creation is not a transfer")
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	out := &Transfer{Hash: tx.Hash(), From: from}

	data := tx.Data()
	if len(data) == 0 {
		out.To = *tx.To()
		out.Amount = tx.Value()
		return out, nil
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := erc20.MethodById(data[:4])
	if err != nil || method.Name != "transfer" {
		return nil, fmt.Errorf("not an erc20 transfer")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return nil, fmt.Errorf("decode transfer arguments: %v", err)
	}
	recipient, ok := args[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected recipient type %T", args[0])
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount type %T", args[1])
	}

	token := *tx.To()
	out.Token = &token
	out.To = recipient
	out.Amount = amount
	return out, nil
}

// ValidateAddress checks if address format is valid for Ethereum
func (a *EthereumAdapter) ValidateAddress(address string) bool {
	// Ethereum addresses are 42 characters: 0x + 40 hex characters
	return addressPattern.MatchString(address)
}

// GetChainID returns the chain identifier
func (a *EthereumAdapter) GetChainID() types.ChainID {
	return a.chainID
}

// Close closes the client connection
func (a *EthereumAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}
