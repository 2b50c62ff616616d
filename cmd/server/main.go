// Package main provides the API server entry point for the storefront backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/web3-storefront/internal/adapter"
	"github.com/web3-storefront/internal/api"
	"github.com/web3-storefront/internal/catalog"
	"github.com/web3-storefront/internal/config"
	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/payment"
	"github.com/web3-storefront/internal/service"
	"github.com/web3-storefront/internal/storage"
	"github.com/web3-storefront/internal/types"
)

func main() {
	fmt.Println("Storefront API Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":        cfg.Logging.Level,
		"format":       cfg.Logging.Format,
		"recordPolicy": cfg.Payments.RecordPolicy,
	}).Info("Structured logging initialized")

	// Connect to the record store
	kv, err := storage.NewRedisCache(&cfg.KV)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to record store")
	}
	defer kv.Close()

	users := storage.NewUserStore(kv, storage.UserStoreOptions{
		KeyPrefix:    cfg.KV.KeyPrefix,
		ScanFallback: cfg.KV.ScanFallback,
		Logger:       logger,
	})
	logger.Info("Record store connected")

	chains := adapter.NewRegistry(adapter.RegistryConfig{
		AlchemyKey:  cfg.Chains.AlchemyAPIKey,
		LocalRPCURL: cfg.Chains.LocalRPCURL,
	})
	defer chains.Close()
	if cfg.Chains.AlchemyAPIKey == "" {
		logger.Warn("ALCHEMY_API_KEY not set; hosted networks will be unreachable")
	}

	// Identity provider
	var verifier api.TokenVerifier
	if cfg.Privy.VerificationKey != "" {
		v, err := identity.NewVerifier(cfg.Privy.AppID, cfg.Privy.VerificationKey)
		if err != nil {
			logger.WithError(err).Fatal("Invalid identity verification key")
		}
		verifier = v
	} else {
		logger.Warn("PRIVY_VERIFICATION_KEY not set; signed-in endpoints will reject every request")
	}

	var directory api.IdentityDirectory
	if cfg.Privy.AppSecret != "" {
		directory = identity.NewClient(cfg.Privy.APIBaseURL, cfg.Privy.AppID, cfg.Privy.AppSecret)
	} else {
		logger.Warn("PRIVY_APP_SECRET not set; sessions will not create user records")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	downloads, err := catalog.NewDownloads(startupCtx, cfg.Storage)
	cancelStartup()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize product downloads")
	}

	// Initialize services
	paymentOpts := service.PaymentOptions{
		StrictRecording: cfg.StrictRecording(),
		Logger:          logger,
	}
	accounts := service.NewAccountService(users, nil, logger)
	cards := service.NewCardPaymentService(payment.NewStripeGateway(cfg.Stripe.SecretKey), users, paymentOpts)
	crypto := service.NewCryptoPaymentService(chains, users, paymentOpts)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		PaidTierRPS:     cfg.RateLimit.PaidTier,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Accounts:  accounts,
		Cards:     cards,
		Crypto:    crypto,
		Verifier:  verifier,
		Directory: directory,
		Catalog:   catalog.Default(),
		Downloads: downloads,
		Store:     users,
		Tier:      tierFromStore(users),
		Logger:    logger,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// tierFromStore rates paid users at the higher tier. Lookup failures fall
// back to the free tier.
func tierFromStore(users *storage.UserStore) api.TierFunc {
	return func(ctx context.Context, identityID string) types.UserTier {
		user, err := users.ReadUser(ctx, identityID)
		if err != nil || user == nil {
			return types.TierFree
		}
		return user.Tier()
	}
}
