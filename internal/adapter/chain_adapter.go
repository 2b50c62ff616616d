package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/web3-storefront/internal/types"
)

// ChainAdapter moves and reads value on one EVM chain
type ChainAdapter interface {
	// SendNative transfers wei of the chain's native coin from the wallet to an address
	SendNative(ctx context.Context, wallet Wallet, to string, wei *big.Int) (common.Hash, error)

	// TransferToken calls transfer(to, units) on an ERC-20 contract from the wallet
	TransferToken(ctx context.Context, wallet Wallet, token string, to string, units *big.Int) (common.Hash, error)

	// WaitForReceipt blocks until the transaction is mined.
	// A reverted transaction returns its receipt together with ErrTransactionReverted.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)

	// TokenBalance returns balanceOf(owner) on an ERC-20 contract in base units
	TokenBalance(ctx context.Context, token string, owner string) (*big.Int, error)

	// NativeBalance returns the owner's native coin balance in wei
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)

	// VerifyTransfer decodes a submitted transaction and checks that it pays
	// at least the expected amount to the expected recipient
	VerifyTransfer(ctx context.Context, hash common.Hash, expected ExpectedTransfer) (*Transfer, error)

	// ValidateAddress checks the address format
	ValidateAddress(address string) bool

	// GetChainID returns the chain identifier
	GetChainID() types.ChainID

	Close()
}

// ExpectedTransfer describes the payment a submitted transaction must carry.
// An empty Token means a native coin transfer.
type ExpectedTransfer struct {
	Token  string
	To     string
	Amount *big.Int
}

// Transfer is a decoded value transfer
type Transfer struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Token  *common.Address
	Amount *big.Int
}

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrTransactionNotFound indicates the node does not know the transaction
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionReverted indicates the transaction was mined with a failure status
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrUserRejected indicates the signer declined the transaction
	ErrUserRejected = errors.New("user rejected the request")

	// ErrTransferMismatch indicates a submitted transaction does not pay what was expected
	ErrTransferMismatch = errors.New("transaction does not match the expected transfer")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "TransferToken", "TokenBalance")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
