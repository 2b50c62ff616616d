// Command checkout sends a USDC payment from a key-held wallet to the
// merchant and records it on the user's account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3-storefront/internal/adapter"
	"github.com/web3-storefront/internal/config"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/service"
	"github.com/web3-storefront/internal/storage"
	"github.com/web3-storefront/internal/types"
)

func main() {
	userFlag := flag.String("user", "", "Identity ID of the paying user")
	chainFlag := flag.String("chain", "31337", "Chain ID to pay on")
	amountFlag := flag.String("amount", "", "Amount in USDC")
	keyFlag := flag.String("key", "", "Payer private key (defaults to PAYER_PRIVATE_KEY)")
	timeoutFlag := flag.Duration("timeout", 3*time.Minute, "How long to wait for confirmation")
	flag.Parse()

	cfg, err := config.LoadToolConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	chainID, err := types.ParseChainID(*chainFlag)
	if err != nil {
		fmt.Printf("Invalid chain: %v\n", err)
		os.Exit(1)
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		fmt.Printf("Invalid amount %q: %v\n", *amountFlag, err)
		os.Exit(1)
	}

	hexKey := *keyFlag
	if hexKey == "" {
		hexKey = os.Getenv("PAYER_PRIVATE_KEY")
	}
	var wallet adapter.Wallet
	if hexKey != "" {
		kw, err := adapter.NewKeyWallet(hexKey)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		wallet = kw
	}

	kv, err := storage.NewRedisCache(&cfg.KV)
	if err != nil {
		fmt.Printf("Error connecting to record store: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	users := storage.NewUserStore(kv, storage.UserStoreOptions{
		KeyPrefix:    cfg.KV.KeyPrefix,
		ScanFallback: cfg.KV.ScanFallback,
		Logger:       logger,
	})

	chains := adapter.NewRegistry(adapter.RegistryConfig{
		AlchemyKey:  cfg.Chains.AlchemyAPIKey,
		LocalRPCURL: cfg.Chains.LocalRPCURL,
	})
	defer chains.Close()

	svc := service.NewCryptoPaymentService(chains, users, service.PaymentOptions{
		StrictRecording: cfg.StrictRecording(),
		Logger:          logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	if wallet != nil {
		fmt.Printf("Paying %s USDC from %s on chain %d\n", amount.String(), wallet.Address().Hex(), chainID)
	}

	result, err := svc.Pay(ctx, service.PayRequest{
		UserID:  *userFlag,
		Wallet:  wallet,
		ChainID: chainID,
		Amount:  amount,
	})
	if err != nil {
		var failure *service.PaymentFailure
		if errors.As(err, &failure) {
			fmt.Printf("Payment failed (%s): %s\n", failure.Kind, failure.Message)
		} else {
			fmt.Printf("Payment failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Payment confirmed: %s\n", result.TxHash)
	if !result.Recorded {
		fmt.Println("Warning: payment was not recorded on the user's account")
	}
}
