package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-storefront/internal/adapter"
	"github.com/web3-storefront/internal/catalog"
	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/service"
	"github.com/web3-storefront/internal/storage"
	"github.com/web3-storefront/internal/types"
)

func TestAuthenticatedRoutes_RequireToken(t *testing.T) {
	server := createTestServer()

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/api/session"},
		{"GET", "/api/users/me"},
		{"POST", "/api/users/me/wallets"},
		{"POST", "/api/payments/card/confirm"},
		{"GET", "/api/payment-intents/pi_1"},
		{"POST", "/api/payments/crypto/verify"},
		{"GET", "/api/products/1/download"},
	}

	for _, rt := range routes {
		w := doRequest(server, rt.method, rt.path, `{}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", rt.method, rt.path, w.Code)
		}

		w = doRequest(server, rt.method, rt.path, `{}`, "forged")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token: expected 401, got %d", rt.method, rt.path, w.Code)
		}
	}
}

func TestSession_AlwaysRedirects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Dependencies)
	}{
		{"reconciled", nil},
		{"directory failure", func(d *Dependencies) {
			d.Directory = &mockDirectory{getUserFunc: func(context.Context, string) (*identity.PrivyUser, error) {
				return nil, identity.ErrUserNotFound
			}}
		}},
		{"no directory", func(d *Dependencies) { d.Directory = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var server *Server
			if tt.modify != nil {
				server = createTestServer(tt.modify)
			} else {
				server = createTestServer()
			}

			w := doRequest(server, "POST", "/api/session", nil, "valid-u1")
			require.Equal(t, http.StatusOK, w.Code)

			var res service.ReconcileResult
			require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
			assert.Equal(t, "/", res.Redirect)
		})
	}
}

func TestAttachWallet_Handler(t *testing.T) {
	t.Run("passes identity and metadata", func(t *testing.T) {
		var gotUser, gotAddr string
		var gotMeta *service.WalletMeta
		server := createTestServer(func(d *Dependencies) {
			d.Accounts = &mockAccountService{attachWalletFunc: func(_ context.Context, userID, address string, meta *service.WalletMeta) (*models.User, error) {
				gotUser, gotAddr, gotMeta = userID, address, meta
				return &models.User{ID: "x"}, nil
			}}
		})

		w := doRequest(server, "POST", "/api/users/me/wallets", map[string]string{
			"address":          "0xABC",
			"walletClientType": "metamask",
		}, "valid-u1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", gotUser)
		assert.Equal(t, "0xABC", gotAddr)
		assert.Equal(t, "metamask", gotMeta.WalletClientType)
	})

	t.Run("conflict", func(t *testing.T) {
		server := createTestServer(func(d *Dependencies) {
			d.Accounts = &mockAccountService{attachWalletFunc: func(context.Context, string, string, *service.WalletMeta) (*models.User, error) {
				return nil, apperrors.NewConflictError("Wallet is already linked to another account", service.ErrAccountClaimed)
			}}
		})

		w := doRequest(server, "POST", "/api/users/me/wallets", map[string]string{"address": "0xABC"}, "valid-u2")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("no record", func(t *testing.T) {
		server := createTestServer(func(d *Dependencies) {
			d.Accounts = &mockAccountService{attachWalletFunc: func(context.Context, string, string, *service.WalletMeta) (*models.User, error) {
				return nil, nil
			}}
		})

		w := doRequest(server, "POST", "/api/users/me/wallets", map[string]string{"address": "0xABC"}, "valid-u3")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		server := createTestServer()
		w := doRequest(server, "POST", "/api/users/me/wallets", `{"address":"0xABC","admin":true}`, "valid-u1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConfirmCardPayment_Handler(t *testing.T) {
	var gotUser, gotIntent string
	server := createTestServer(func(d *Dependencies) {
		d.Cards = &mockCardService{confirmFunc: func(_ context.Context, userID, intentID string) (*service.ConfirmResult, error) {
			gotUser, gotIntent = userID, intentID
			return &service.ConfirmResult{Outcome: types.PaymentStatusSucceeded, Recorded: true}, nil
		}}
	})

	w := doRequest(server, "POST", "/api/payments/card/confirm", map[string]string{"paymentIntentId": "pi_9"}, "valid-u1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, "pi_9", gotIntent)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "succeeded", body["outcome"])
	assert.Equal(t, true, body["recorded"])
}

func TestGetPaymentIntent_Handler(t *testing.T) {
	server := createTestServer(func(d *Dependencies) {
		d.Cards = &mockCardService{statusFunc: func(context.Context, string) (string, error) {
			return types.PaymentStatusProcessing, nil
		}}
	})

	w := doRequest(server, "GET", "/api/payment-intents/pi_7", nil, "valid-u1")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "pi_7", body["id"])
	assert.Equal(t, "processing", body["status"])
}

func TestVerifyCryptoPayment_Handler(t *testing.T) {
	t.Run("identity comes from the token", func(t *testing.T) {
		var got service.VerifyRequest
		server := createTestServer(func(d *Dependencies) {
			d.Crypto = &mockCryptoService{verifyFunc: func(_ context.Context, req service.VerifyRequest) (*service.PayResult, error) {
				got = req
				return &service.PayResult{TxHash: req.TxHash, Recorded: true}, nil
			}}
		})

		w := doRequest(server, "POST", "/api/payments/crypto/verify",
			`{"chainId": 8453, "txHash": "0xabc", "amount": "4.5"}`, "valid-u1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, types.ChainBase, got.ChainID)
		assert.Equal(t, "4.5", got.Amount.String())
	})

	t.Run("classified failure", func(t *testing.T) {
		server := createTestServer(func(d *Dependencies) {
			d.Crypto = &mockCryptoService{verifyFunc: func(context.Context, service.VerifyRequest) (*service.PayResult, error) {
				return nil, service.ClassifyError(adapter.ErrTransactionReverted, nil, decimal.NewFromInt(1))
			}}
		})

		w := doRequest(server, "POST", "/api/payments/crypto/verify", `{"chainId": 8453, "txHash": "0xabc", "amount": 1}`, "valid-u1")
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, ErrCodePaymentFailed, body.Error.Code)
		assert.Equal(t, "Transaction failed. Please check your balance and try again", body.Error.Message)
	})
}

func TestDownloadProduct_Handler(t *testing.T) {
	t.Run("link for paid user", func(t *testing.T) {
		server := createTestServer()
		w := doRequest(server, "GET", "/api/products/1/download", nil, "valid-u1")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.NotEmpty(t, body["url"])
	})

	t.Run("payment required", func(t *testing.T) {
		server := createTestServer(func(d *Dependencies) {
			d.Downloads = &mockDownloads{urlFunc: func(context.Context, catalog.Product, *models.User) (string, error) {
				return "", catalog.ErrPaymentRequired
			}}
		})
		w := doRequest(server, "GET", "/api/products/1/download", nil, "valid-u1")
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
	})

	t.Run("not downloadable", func(t *testing.T) {
		server := createTestServer(func(d *Dependencies) {
			d.Downloads = &mockDownloads{urlFunc: func(context.Context, catalog.Product, *models.User) (string, error) {
				return "", catalog.ErrNotDownloadable
			}}
		})
		w := doRequest(server, "GET", "/api/products/2/download", nil, "valid-u1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestErrorResponseFormat tests that error responses carry code and message
func TestErrorResponseFormat(t *testing.T) {
	server := createTestServer(func(d *Dependencies) {
		d.Accounts = &mockAccountService{getUserFunc: func(context.Context, string) (*models.User, error) {
			return nil, apperrors.NewDatabaseError("read user", errors.New("i/o timeout"))
		}}
	})

	w := doRequest(server, "GET", "/api/users/me", nil, "valid-u1")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if response.Error.Code == "" || response.Error.Message == "" {
		t.Errorf("Expected code and message, got %+v", response.Error)
	}
	if response.Error.Message == "i/o timeout" {
		t.Error("Cause leaked into response message")
	}
}

// TestConcurrentRequests tests concurrent request handling
func TestConcurrentRequests(t *testing.T) {
	server := createTestServer()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := doRequest(server, "GET", "/api/products", nil, "")
			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
		}()
	}
	wg.Wait()
}

// TestSessionFlow runs login and wallet attachment against real services
// and an in-memory record store.
func TestSessionFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewUserStore(storage.NewRedisCacheFromClient(client), storage.UserStoreOptions{
		ScanFallback: true,
		Logger:       logging.Discard(),
	})
	accounts := service.NewAccountService(store, nil, logging.Discard())

	wallet := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	server := createTestServer(func(d *Dependencies) {
		d.Accounts = accounts
		d.Store = store
		d.Directory = &mockDirectory{getUserFunc: func(_ context.Context, id string) (*identity.PrivyUser, error) {
			return &identity.PrivyUser{
				ID: id,
				LinkedAccounts: []identity.LinkedAccount{
					{Type: types.AccountTypeWallet, Address: &wallet},
				},
			}, nil
		}}
	})

	w := doRequest(server, "POST", "/api/session", nil, "valid-u1")
	require.Equal(t, http.StatusOK, w.Code)

	var res service.ReconcileResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.True(t, res.Created)
	assert.Equal(t, "/", res.Redirect)

	// a second identity cannot take the same wallet
	w = doRequest(server, "POST", "/api/session", nil, "valid-u2")
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(server, "POST", "/api/users/me/wallets", map[string]string{"address": wallet}, "valid-u2")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(server, "POST", "/api/users/me/wallets", map[string]string{"address": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}, "valid-u1")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(server, "GET", "/api/users/me", nil, "valid-u1")
	require.Equal(t, http.StatusOK, w.Code)

	var user models.User
	require.NoError(t, json.NewDecoder(w.Body).Decode(&user))
	require.Len(t, user.Privy.LinkedAccounts, 2)
	assert.Equal(t, 1, user.DefaultWalletCount())
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", user.DefaultWallet().AddressValue())

	w = doRequest(server, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
