package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3-storefront/internal/adapter"
	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/networks"
	"github.com/web3-storefront/internal/types"
)

// Shopper-facing precondition messages, checked in this order
const (
	MsgSignIn           = "Please sign in to continue"
	MsgConnectWallet    = "Please connect your wallet for crypto payment"
	MsgSupportedNetwork = "Please select a supported network"
)

// diagnosticMarker starts the request dump RPC errors append to their message
const diagnosticMarker = "Request Arguments"

// ChainProvider hands out chain adapters by chain id
type ChainProvider interface {
	Get(chainID types.ChainID) (adapter.ChainAdapter, error)
}

// FailureKind classifies a failed crypto payment
type FailureKind string

const (
	FailureUserRejected        FailureKind = "user_rejected"
	FailureInsufficientBalance FailureKind = "insufficient_balance"
	FailureReverted            FailureKind = "reverted"
	FailureUnknown             FailureKind = "unknown"
)

// PaymentFailure is a classified crypto payment error with the message shown to the shopper
type PaymentFailure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *PaymentFailure) Error() string {
	return f.Message
}

func (f *PaymentFailure) Unwrap() error {
	return f.Err
}

// ClassifyError maps a transfer failure to a shopper-facing message. balance
// is the payer's separately fetched USDC balance, nil when unknown.
func ClassifyError(err error, balance *decimal.Decimal, requested decimal.Decimal) *PaymentFailure {
	msg := displayMessage(err)

	switch {
	case errors.Is(err, adapter.ErrUserRejected) ||
		strings.Contains(msg, "User rejected") || strings.Contains(msg, "user rejected"):
		return &PaymentFailure{Kind: FailureUserRejected, Message: "You rejected the transaction", Err: err}

	case balance != nil && balance.LessThan(requested):
		return &PaymentFailure{
			Kind: FailureInsufficientBalance,
			Message: fmt.Sprintf("Insufficient USDC balance. You have %s USDC but trying to send %s USDC",
				balance.StringFixed(2), requested.String()),
			Err: err,
		}

	case errors.Is(err, adapter.ErrTransactionReverted) || strings.Contains(msg, "reverted"):
		return &PaymentFailure{Kind: FailureReverted, Message: "Transaction failed. Please check your balance and try again", Err: err}

	default:
		return &PaymentFailure{Kind: FailureUnknown, Message: strings.TrimSpace(strings.Split(msg, diagnosticMarker)[0]), Err: err}
	}
}

// displayMessage strips adapter context so the provider's own text is shown
func displayMessage(err error) string {
	var adapterErr *adapter.AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Err != nil {
		return adapterErr.Err.Error()
	}
	return err.Error()
}

// CryptoPaymentService runs USDC payments to the merchant address
type CryptoPaymentService struct {
	chains   ChainProvider
	recorder *paymentRecorder
	now      Clock
}

// NewCryptoPaymentService creates a new crypto payment service
func NewCryptoPaymentService(chains ChainProvider, users UserRepository, opts PaymentOptions) *CryptoPaymentService {
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	return &CryptoPaymentService{
		chains:   chains,
		recorder: newPaymentRecorder(users, opts, "crypto_payments"),
		now:      now,
	}
}

// PayRequest is a wallet-signed payment
type PayRequest struct {
	UserID  string
	Wallet  adapter.Wallet
	ChainID types.ChainID
	// Amount in USDC; on the local network the same number of native coins
	Amount decimal.Decimal
}

// PayResult is a confirmed crypto payment
type PayResult struct {
	TxHash   string                `json:"txHash"`
	ChainID  types.ChainID         `json:"chainId"`
	Status   string                `json:"status"`
	Recorded bool                  `json:"recorded"`
	Payment  *models.PaymentRecord `json:"payment,omitempty"`
}

// checkPreconditions enforces sign-in, wallet and network in that order
func checkPreconditions(userID string, walletConnected bool, chainID types.ChainID) error {
	if userID == "" {
		return apperrors.NewUnauthorizedError(MsgSignIn)
	}
	if !walletConnected {
		return apperrors.NewValidationError("WALLET_NOT_CONNECTED", MsgConnectWallet)
	}
	if !networks.IsSupported(chainID) {
		return apperrors.NewValidationError("UNSUPPORTED_NETWORK", MsgSupportedNetwork)
	}
	return nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if !amount.Equal(amount.Truncate(networks.USDCDecimals)) {
		return apperrors.NewInvalidParameterError("amount", fmt.Sprintf("at most %d decimal places", networks.USDCDecimals))
	}
	return nil
}

// transferUnits converts a USDC amount to what moves on chain: wei of the
// native coin on the local network, token base units elsewhere.
func transferUnits(chainID types.ChainID, amount decimal.Decimal) *big.Int {
	if networks.IsLocal(chainID) {
		return amount.Shift(networks.NativeDecimals).BigInt()
	}
	return amount.Shift(networks.USDCDecimals).BigInt()
}

// Pay sends the amount from the wallet to the merchant, waits for
// confirmation and records the payment. A reverted transfer is never recorded.
func (s *CryptoPaymentService) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	if err := checkPreconditions(req.UserID, req.Wallet != nil, req.ChainID); err != nil {
		return nil, err
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	chain, err := s.chains.Get(req.ChainID)
	if err != nil {
		return nil, apperrors.NewProviderError("rpc", "Network is unavailable", err)
	}

	units := transferUnits(req.ChainID, req.Amount)
	var hash common.Hash
	if networks.IsLocal(req.ChainID) {
		hash, err = chain.SendNative(ctx, req.Wallet, networks.MerchantAddress, units)
	} else {
		hash, err = chain.TransferToken(ctx, req.Wallet, networks.USDCAddress(req.ChainID), networks.MerchantAddress, units)
	}
	if err != nil {
		return nil, s.classify(ctx, chain, req.Wallet.Address().Hex(), req.Amount, err)
	}

	return s.confirm(ctx, chain, req.UserID, req.Wallet.Address().Hex(), hash, req.Amount)
}

// confirm waits for the receipt and records a successful payment
func (s *CryptoPaymentService) confirm(ctx context.Context, chain adapter.ChainAdapter, userID, payer string, hash common.Hash, amount decimal.Decimal) (*PayResult, error) {
	if _, err := chain.WaitForReceipt(ctx, hash); err != nil {
		return nil, s.classify(ctx, chain, payer, amount, err)
	}

	now := s.now()
	dollars, _ := amount.Float64()
	rec := models.NewPaymentRecord(
		hash.Hex(),
		chain.GetChainID(),
		dollars,
		types.CurrencyUSDC,
		types.PaymentStatusSucceeded,
		types.PaymentTypeCrypto,
		now,
		now,
	)

	result := &PayResult{
		TxHash:  hash.Hex(),
		ChainID: chain.GetChainID(),
		Status:  types.PaymentStatusSucceeded,
		Payment: &rec,
	}

	recorded, err := s.recorder.record(ctx, userID, rec)
	if err != nil {
		return result, err
	}
	result.Recorded = recorded
	return result, nil
}

// classify fetches the payer's balance and maps err to a PaymentFailure
func (s *CryptoPaymentService) classify(ctx context.Context, chain adapter.ChainAdapter, payer string, requested decimal.Decimal, err error) error {
	var balance *decimal.Decimal
	if b, balErr := s.balanceOf(ctx, chain, payer); balErr == nil {
		balance = &b
	}
	return ClassifyError(err, balance, requested)
}

// balanceOf returns the payer's spendable balance in USDC terms
func (s *CryptoPaymentService) balanceOf(ctx context.Context, chain adapter.ChainAdapter, owner string) (decimal.Decimal, error) {
	chainID := chain.GetChainID()
	if networks.IsLocal(chainID) {
		wei, err := chain.NativeBalance(ctx, owner)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(wei, -networks.NativeDecimals), nil
	}

	units, err := chain.TokenBalance(ctx, networks.USDCAddress(chainID), owner)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(units, -networks.USDCDecimals), nil
}

// Balance returns an address's USDC balance on a chain with two decimals
func (s *CryptoPaymentService) Balance(ctx context.Context, chainID types.ChainID, address string) (string, error) {
	if !networks.IsSupported(chainID) {
		return "", apperrors.NewValidationError("UNSUPPORTED_NETWORK", MsgSupportedNetwork)
	}

	chain, err := s.chains.Get(chainID)
	if err != nil {
		return "", apperrors.NewProviderError("rpc", "Network is unavailable", err)
	}
	if !chain.ValidateAddress(address) {
		return "", apperrors.NewInvalidParameterError("address", "not a valid EVM address")
	}

	balance, err := s.balanceOf(ctx, chain, address)
	if err != nil {
		return "", apperrors.NewProviderError("rpc", "Error fetching USDC balance", err)
	}
	return balance.StringFixed(2), nil
}

// VerifyRequest reports a transfer the shopper's own wallet already submitted
type VerifyRequest struct {
	UserID  string          `json:"-"`
	ChainID types.ChainID   `json:"chainId"`
	TxHash  string          `json:"txHash"`
	Amount  decimal.Decimal `json:"amount"`
}

// Verify checks that a submitted transaction pays the merchant the amount
// from one of the user's wallets, waits for it and records the payment.
func (s *CryptoPaymentService) Verify(ctx context.Context, req VerifyRequest) (*PayResult, error) {
	if err := checkPreconditions(req.UserID, true, req.ChainID); err != nil {
		return nil, err
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if !isTxHash(req.TxHash) {
		return nil, apperrors.NewInvalidParameterError("txHash", "not a transaction hash")
	}

	user, err := s.recorder.users.ReadUser(ctx, req.UserID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read user", err)
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user", req.UserID)
	}

	chain, err := s.chains.Get(req.ChainID)
	if err != nil {
		return nil, apperrors.NewProviderError("rpc", "Network is unavailable", err)
	}

	expected := adapter.ExpectedTransfer{
		To:     networks.MerchantAddress,
		Amount: transferUnits(req.ChainID, req.Amount),
	}
	if !networks.IsLocal(req.ChainID) {
		expected.Token = networks.USDCAddress(req.ChainID)
	}

	hash := common.HexToHash(req.TxHash)
	transfer, err := chain.VerifyTransfer(ctx, hash, expected)
	if err != nil {
		if errors.Is(err, adapter.ErrTransferMismatch) || errors.Is(err, adapter.ErrTransactionNotFound) {
			verr := apperrors.NewValidationError("TRANSFER_MISMATCH", "Transaction does not pay the expected amount to the merchant")
			verr.Cause = err
			return nil, verr
		}
		return nil, apperrors.NewProviderError("rpc", displayMessage(err), err)
	}

	owns, err := s.ownsWallet(ctx, user, req.UserID, transfer.From)
	if err != nil {
		return nil, apperrors.NewDatabaseError("check wallet", err)
	}
	if !owns {
		return nil, apperrors.NewForbiddenError("Transaction was not sent from one of your wallets")
	}

	return s.confirm(ctx, chain, req.UserID, transfer.From.Hex(), hash, req.Amount)
}

// ownsWallet reports whether addr is one of the user's wallets and no other
// user holds it
func (s *CryptoPaymentService) ownsWallet(ctx context.Context, user *models.User, userID string, addr common.Address) (bool, error) {
	for _, acc := range user.Privy.LinkedAccounts {
		if !acc.IsWallet() || !common.IsHexAddress(acc.AddressValue()) || common.HexToAddress(acc.AddressValue()) != addr {
			continue
		}
		claimed, err := s.recorder.users.AccountClaimedByOther(ctx, types.AccountTypeWallet, acc.AddressValue(), userID)
		if err != nil {
			return false, err
		}
		return !claimed, nil
	}
	return false, nil
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
