package adapter

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is the account that signs outgoing payments. Implementations backed
// by an interactive signer return ErrUserRejected when the holder declines.
type Wallet interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// KeyWallet signs with an in-memory private key
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet parses a hex private key, with or without the 0x prefix
func NewKeyWallet(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the wallet's account address
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// SignTx signs tx for the given chain
func (w *KeyWallet) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), w.key)
}
