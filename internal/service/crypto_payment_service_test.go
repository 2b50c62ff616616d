package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-storefront/internal/adapter"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/networks"
	"github.com/web3-storefront/internal/types"
)

// hardhat account #0
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const payerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type nativeSend struct {
	to  string
	wei *big.Int
}

type tokenTransfer struct {
	token string
	to    string
	units *big.Int
}

// fakeChain records calls and returns canned results
type fakeChain struct {
	chainID types.ChainID

	natives   []nativeSend
	transfers []tokenTransfer
	sendErr   error
	waitErr   error
	balance   *big.Int
	balErr    error

	transfer  *adapter.Transfer
	verifyErr error
	expected  *adapter.ExpectedTransfer
}

var fakeHash = common.HexToHash("0x9f2c0a3e5b8d4c1f7a6e2d9b0c3f8a1e4d7b2c5f8e1a4d7b0c3f6e9a2d5b8c1f")

func (c *fakeChain) SendNative(_ context.Context, _ adapter.Wallet, to string, wei *big.Int) (common.Hash, error) {
	c.natives = append(c.natives, nativeSend{to: to, wei: wei})
	return fakeHash, c.sendErr
}

func (c *fakeChain) TransferToken(_ context.Context, _ adapter.Wallet, token, to string, units *big.Int) (common.Hash, error) {
	c.transfers = append(c.transfers, tokenTransfer{token: token, to: to, units: units})
	return fakeHash, c.sendErr
}

func (c *fakeChain) WaitForReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if c.waitErr != nil {
		return &ethtypes.Receipt{TxHash: hash, Status: ethtypes.ReceiptStatusFailed}, c.waitErr
	}
	return &ethtypes.Receipt{TxHash: hash, Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (c *fakeChain) TokenBalance(context.Context, string, string) (*big.Int, error) {
	if c.balErr != nil {
		return nil, c.balErr
	}
	return c.balance, nil
}

func (c *fakeChain) NativeBalance(context.Context, string) (*big.Int, error) {
	if c.balErr != nil {
		return nil, c.balErr
	}
	return c.balance, nil
}

func (c *fakeChain) VerifyTransfer(_ context.Context, _ common.Hash, expected adapter.ExpectedTransfer) (*adapter.Transfer, error) {
	c.expected = &expected
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	return c.transfer, nil
}

func (c *fakeChain) ValidateAddress(address string) bool { return common.IsHexAddress(address) }
func (c *fakeChain) GetChainID() types.ChainID          { return c.chainID }
func (c *fakeChain) Close()                             {}

type fakeChains map[types.ChainID]*fakeChain

func (f fakeChains) Get(chainID types.ChainID) (adapter.ChainAdapter, error) {
	c, ok := f[chainID]
	if !ok {
		return nil, fmt.Errorf("no adapter for chain %d", chainID)
	}
	return c, nil
}

func testWallet(t *testing.T) adapter.Wallet {
	t.Helper()
	w, err := adapter.NewKeyWallet(testKey)
	require.NoError(t, err)
	return w
}

func setupCrypto(t *testing.T, chain *fakeChain, strict bool) (*CryptoPaymentService, context.Context, func(string) int) {
	t.Helper()
	store, _ := setupUserStore(t)
	ctx := testContext(t)
	_, err := NewAccountService(store, fixedClock, logging.Discard()).Reconcile(ctx, walletIdentity("u1", payerAddress))
	require.NoError(t, err)

	svc := NewCryptoPaymentService(fakeChains{chain.chainID: chain}, store, paymentOpts(strict))
	payments := func(id string) int {
		u, err := store.ReadUser(ctx, id)
		require.NoError(t, err)
		if u == nil {
			return 0
		}
		return len(u.Payments)
	}
	return svc, ctx, payments
}

func TestPay_LocalNetworkSendsNativeCoin(t *testing.T) {
	chain := &fakeChain{chainID: types.ChainHardhat}
	svc, ctx, payments := setupCrypto(t, chain, false)

	res, err := svc.Pay(ctx, PayRequest{
		UserID:  "u1",
		Wallet:  testWallet(t),
		ChainID: types.ChainHardhat,
		Amount:  decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	require.Len(t, chain.natives, 1)
	assert.Empty(t, chain.transfers)
	assert.Equal(t, networks.MerchantAddress, chain.natives[0].to)
	want, _ := new(big.Int).SetString("5000000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(chain.natives[0].wei))

	assert.True(t, res.Recorded)
	assert.Equal(t, fakeHash.Hex(), res.TxHash)
	assert.Equal(t, types.PaymentTypeCrypto, res.Payment.Type)
	assert.Equal(t, types.CurrencyUSDC, res.Payment.Currency)
	assert.Equal(t, types.ChainHardhat, res.Payment.ChainID)
	assert.Equal(t, 5.0, res.Payment.Amount)
	assert.Equal(t, 1, payments("u1"))
}

func TestPay_TokenTransferOnOtherChains(t *testing.T) {
	chain := &fakeChain{chainID: types.ChainBase}
	svc, ctx, payments := setupCrypto(t, chain, false)

	_, err := svc.Pay(ctx, PayRequest{
		UserID:  "u1",
		Wallet:  testWallet(t),
		ChainID: types.ChainBase,
		Amount:  decimal.RequireFromString("2.5"),
	})
	require.NoError(t, err)

	assert.Empty(t, chain.natives)
	require.Len(t, chain.transfers, 1)
	assert.Equal(t, networks.USDCAddress(types.ChainBase), chain.transfers[0].token)
	assert.Equal(t, networks.MerchantAddress, chain.transfers[0].to)
	assert.Equal(t, int64(2_500_000), chain.transfers[0].units.Int64())
	assert.Equal(t, 1, payments("u1"))
}

func TestPay_RevertedTransferIsNotRecorded(t *testing.T) {
	chain := &fakeChain{
		chainID: types.ChainBase,
		waitErr: adapter.ErrTransactionReverted,
		balance: big.NewInt(10_000_000),
	}
	svc, ctx, payments := setupCrypto(t, chain, false)

	_, err := svc.Pay(ctx, PayRequest{
		UserID:  "u1",
		Wallet:  testWallet(t),
		ChainID: types.ChainBase,
		Amount:  decimal.NewFromInt(3),
	})

	var failure *PaymentFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureReverted, failure.Kind)
	assert.Equal(t, "Transaction failed. Please check your balance and try again", failure.Message)
	assert.Equal(t, 0, payments("u1"))
}

func TestPay_Preconditions(t *testing.T) {
	chain := &fakeChain{chainID: types.ChainBase}
	svc, ctx, _ := setupCrypto(t, chain, false)
	wallet := testWallet(t)

	tests := []struct {
		name   string
		req    PayRequest
		status int
		msg    string
	}{
		{"signed out first", PayRequest{ChainID: 999, Amount: decimal.NewFromInt(1)}, http.StatusUnauthorized, MsgSignIn},
		{"wallet before network", PayRequest{UserID: "u1", ChainID: 999, Amount: decimal.NewFromInt(1)}, http.StatusBadRequest, MsgConnectWallet},
		{"unsupported network", PayRequest{UserID: "u1", Wallet: wallet, ChainID: 999, Amount: decimal.NewFromInt(1)}, http.StatusBadRequest, MsgSupportedNetwork},
		{"zero amount", PayRequest{UserID: "u1", Wallet: wallet, ChainID: types.ChainBase}, http.StatusBadRequest, "amount"},
		{"sub-unit amount", PayRequest{UserID: "u1", Wallet: wallet, ChainID: types.ChainBase, Amount: decimal.RequireFromString("0.0000001")}, http.StatusBadRequest, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Pay(ctx, tt.req)
			requireStatus(t, err, tt.status)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	assert.Empty(t, chain.transfers)
	assert.Empty(t, chain.natives)
}

func TestClassifyError(t *testing.T) {
	low := decimal.NewFromInt(2)
	high := decimal.NewFromInt(100)
	requested := decimal.NewFromInt(5)

	tests := []struct {
		name    string
		err     error
		balance *decimal.Decimal
		kind    FailureKind
		message string
	}{
		{
			name:    "rejection wins over balance",
			err:     adapter.NewAdapterError(types.ChainBase, "TransferToken", adapter.ErrUserRejected, nil),
			balance: &low,
			kind:    FailureUserRejected,
			message: "You rejected the transaction",
		},
		{
			name:    "rejection text from a wallet",
			err:     errors.New("User rejected the request."),
			kind:    FailureUserRejected,
			message: "You rejected the transaction",
		},
		{
			name:    "balance wins over revert",
			err:     adapter.ErrTransactionReverted,
			balance: &low,
			kind:    FailureInsufficientBalance,
			message: "Insufficient USDC balance. You have 2.00 USDC but trying to send 5 USDC",
		},
		{
			name:    "revert with enough balance",
			err:     fmt.Errorf("wait: %w", adapter.ErrTransactionReverted),
			balance: &high,
			kind:    FailureReverted,
			message: "Transaction failed. Please check your balance and try again",
		},
		{
			name:    "unknown balance falls through",
			err:     errors.New("execution reverted: ERC20: transfer amount exceeds balance"),
			kind:    FailureReverted,
			message: "Transaction failed. Please check your balance and try again",
		},
		{
			name:    "diagnostic dump trimmed",
			err:     adapter.NewAdapterError(types.ChainBase, "TransferToken", errors.New("nonce too low\nRequest Arguments:\n  from: 0xf39f"), nil),
			balance: &high,
			kind:    FailureUnknown,
			message: "nonce too low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ClassifyError(tt.err, tt.balance, requested)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.message, f.Message)
			assert.ErrorIs(t, f, tt.err)
		})
	}
}

func TestPay_InsufficientBalanceMessage(t *testing.T) {
	chain := &fakeChain{
		chainID: types.ChainPolygon,
		sendErr: errors.New("gas required exceeds allowance"),
		balance: big.NewInt(1_250_000),
	}
	svc, ctx, payments := setupCrypto(t, chain, false)

	_, err := svc.Pay(ctx, PayRequest{UserID: "u1", Wallet: testWallet(t), ChainID: types.ChainPolygon, Amount: decimal.NewFromInt(3)})
	require.Error(t, err)
	assert.Equal(t, "Insufficient USDC balance. You have 1.25 USDC but trying to send 3 USDC", err.Error())
	assert.Equal(t, 0, payments("u1"))
}

func TestVerify(t *testing.T) {
	payer := common.HexToAddress(payerAddress)
	chain := &fakeChain{
		chainID:  types.ChainBase,
		transfer: &adapter.Transfer{Hash: fakeHash, From: payer, To: common.HexToAddress(networks.MerchantAddress), Amount: big.NewInt(4_000_000)},
	}
	svc, ctx, payments := setupCrypto(t, chain, false)

	req := VerifyRequest{UserID: "u1", ChainID: types.ChainBase, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(4)}
	res, err := svc.Verify(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	require.NotNil(t, chain.expected)
	assert.Equal(t, networks.USDCAddress(types.ChainBase), chain.expected.Token)
	assert.Equal(t, int64(4_000_000), chain.expected.Amount.Int64())

	res, err = svc.Verify(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Equal(t, 1, payments("u1"))
}

func TestVerify_Rejections(t *testing.T) {
	t.Run("malformed hash", func(t *testing.T) {
		svc, ctx, _ := setupCrypto(t, &fakeChain{chainID: types.ChainBase}, false)
		_, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", ChainID: types.ChainBase, TxHash: "0x1234", Amount: decimal.NewFromInt(1)})
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("someone else's wallet", func(t *testing.T) {
		chain := &fakeChain{
			chainID:  types.ChainBase,
			transfer: &adapter.Transfer{From: common.HexToAddress("0x000000000000000000000000000000000000dEaD"), Amount: big.NewInt(1_000_000)},
		}
		svc, ctx, payments := setupCrypto(t, chain, false)
		_, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", ChainID: types.ChainBase, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(1)})
		requireStatus(t, err, http.StatusForbidden)
		assert.Equal(t, 0, payments("u1"))
	})

	t.Run("transfer mismatch", func(t *testing.T) {
		chain := &fakeChain{chainID: types.ChainBase, verifyErr: adapter.ErrTransferMismatch}
		svc, ctx, _ := setupCrypto(t, chain, false)
		_, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", ChainID: types.ChainBase, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(1)})
		requireStatus(t, err, http.StatusBadRequest)
		assert.ErrorIs(t, err, adapter.ErrTransferMismatch)
	})

	t.Run("local network expects native coin", func(t *testing.T) {
		chain := &fakeChain{
			chainID:  types.ChainHardhat,
			transfer: &adapter.Transfer{From: common.HexToAddress(payerAddress)},
		}
		svc, ctx, _ := setupCrypto(t, chain, false)
		_, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", ChainID: types.ChainHardhat, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
		assert.Empty(t, chain.expected.Token)
		assert.Equal(t, "1000000000000000000", chain.expected.Amount.String())
	})
}

func TestVerify_LegacyEmbeddedCopyOfClaimedWallet(t *testing.T) {
	payer := common.HexToAddress(payerAddress)
	chain := &fakeChain{
		chainID:  types.ChainBase,
		transfer: &adapter.Transfer{Hash: fakeHash, From: payer, To: common.HexToAddress(networks.MerchantAddress), Amount: big.NewInt(4_000_000)},
	}
	store, _ := setupUserStore(t)
	ctx := testContext(t)
	_, err := NewAccountService(store, fixedClock, logging.Discard()).Reconcile(ctx, walletIdentity("u1", payerAddress))
	require.NoError(t, err)

	addr, embedded := payerAddress, types.ConnectorEmbedded
	require.NoError(t, store.WriteUser(ctx, "u2", &models.User{
		ID: "u2",
		Privy: models.PrivyProfile{
			ID: "u2",
			LinkedAccounts: []models.LinkedAccount{
				{Address: &addr, Type: types.AccountTypeWallet, ConnectorType: &embedded},
			},
		},
	}))

	svc := NewCryptoPaymentService(fakeChains{chain.chainID: chain}, store, paymentOpts(false))
	_, err = svc.Verify(ctx, VerifyRequest{UserID: "u2", ChainID: types.ChainBase, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(4)})
	requireStatus(t, err, http.StatusForbidden)

	stored, err := store.ReadUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, stored.Payments)
	assert.False(t, stored.Payed)

	res, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", ChainID: types.ChainBase, TxHash: fakeHash.Hex(), Amount: decimal.NewFromInt(4)})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
}

func TestBalance(t *testing.T) {
	t.Run("usdc", func(t *testing.T) {
		chain := &fakeChain{chainID: types.ChainBase, balance: big.NewInt(12_345_678)}
		svc, ctx, _ := setupCrypto(t, chain, false)
		bal, err := svc.Balance(ctx, types.ChainBase, payerAddress)
		require.NoError(t, err)
		assert.Equal(t, "12.35", bal)
	})

	t.Run("local native", func(t *testing.T) {
		wei, _ := new(big.Int).SetString("10000000000000000000000", 10)
		chain := &fakeChain{chainID: types.ChainHardhat, balance: wei}
		svc, ctx, _ := setupCrypto(t, chain, false)
		bal, err := svc.Balance(ctx, types.ChainHardhat, payerAddress)
		require.NoError(t, err)
		assert.Equal(t, "10000.00", bal)
	})

	t.Run("bad input", func(t *testing.T) {
		chain := &fakeChain{chainID: types.ChainBase}
		svc, ctx, _ := setupCrypto(t, chain, false)
		_, err := svc.Balance(ctx, 999, payerAddress)
		requireStatus(t, err, http.StatusBadRequest)
		_, err = svc.Balance(ctx, types.ChainBase, "nope")
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("rpc failure", func(t *testing.T) {
		chain := &fakeChain{chainID: types.ChainBase, balErr: errors.New("dial tcp: refused")}
		svc, ctx, _ := setupCrypto(t, chain, false)
		_, err := svc.Balance(ctx, types.ChainBase, payerAddress)
		requireStatus(t, err, http.StatusBadGateway)
	})
}
