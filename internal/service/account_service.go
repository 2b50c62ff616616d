package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/types"
)

// LandingPath is where a session goes after login, whatever reconciliation did
const LandingPath = "/"

// ErrAccountClaimed is returned when a wallet already belongs to another user
var ErrAccountClaimed = errors.New("account already linked to another user")

// UserRepository is the record store the services read and write
type UserRepository interface {
	ReadUser(ctx context.Context, key string) (*models.User, error)
	WriteUser(ctx context.Context, key string, user *models.User) error
	AccountClaimedByOther(ctx context.Context, accountType, address, ownerID string) (bool, error)
	ClaimAccount(ctx context.Context, accountType, address, ownerID string) (bool, error)
}

// Clock returns the current time
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

// AccountService creates user records at first login and attaches wallets
type AccountService struct {
	users  UserRepository
	now    Clock
	logger *logging.Logger
}

// NewAccountService creates a new account service
func NewAccountService(users UserRepository, now Clock, logger *logging.Logger) *AccountService {
	if now == nil {
		now = defaultClock
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AccountService{
		users:  users,
		now:    now,
		logger: logger.WithField("component", "account_service"),
	}
}

// ReconcileResult describes what first-login reconciliation did
type ReconcileResult struct {
	User *models.User `json:"user,omitempty"`
	// Created is true when this call wrote a new record
	Created bool `json:"created"`
	// Persisted is false when the store could not be read or written
	Persisted bool `json:"persisted"`
	// Dropped lists reported addresses already claimed by another user
	Dropped  []string `json:"dropped,omitempty"`
	Redirect string   `json:"redirect"`
}

// Reconcile creates the stored record for an identity on first login. A
// record that already exists is left untouched. Store failures are logged and
// never block the session: the result always carries the landing redirect.
func (s *AccountService) Reconcile(ctx context.Context, ident *identity.PrivyUser) (*ReconcileResult, error) {
	if ident == nil || ident.ID == "" {
		return nil, apperrors.NewUnauthorizedError("Please sign in to continue")
	}

	logger := s.logger.WithIdentity(ident.ID)
	result := &ReconcileResult{Redirect: LandingPath}

	existing, err := s.users.ReadUser(ctx, ident.ID)
	if err != nil {
		logger.WithError(err).Error("Failed to read user during reconciliation")
		return result, nil
	}
	if existing != nil {
		result.User = existing
		result.Persisted = true
		return result, nil
	}

	accounts := make([]models.LinkedAccount, 0, len(ident.LinkedAccounts))
	for _, acc := range ident.LinkedAccounts {
		if acc.Address != nil {
			claimed, err := s.users.AccountClaimedByOther(ctx, acc.Type, *acc.Address, ident.ID)
			if err != nil {
				logger.WithError(err).Error("Failed to check account uniqueness")
				return result, nil
			}
			if claimed {
				result.Dropped = append(result.Dropped, *acc.Address)
				continue
			}
		}
		accounts = append(accounts, toLinkedAccount(acc))
	}

	user := &models.User{
		ID:    uuid.NewString(),
		Payed: false,
		Privy: models.PrivyProfile{
			ID:             ident.ID,
			CreatedAt:      ident.CreatedAt,
			LinkedAccounts: accounts,
		},
		Payments: []models.PaymentRecord{},
	}

	// claim before writing so a concurrent first login for another identity
	// cannot take the same address
	kept := user.Privy.LinkedAccounts[:0]
	for _, acc := range user.Privy.LinkedAccounts {
		if acc.Address == nil || (acc.IsWallet() && acc.IsEmbedded()) {
			kept = append(kept, acc)
			continue
		}
		ok, err := s.users.ClaimAccount(ctx, acc.Type, *acc.Address, ident.ID)
		if err != nil {
			logger.WithError(err).Error("Failed to claim account")
			return result, nil
		}
		if !ok {
			result.Dropped = append(result.Dropped, *acc.Address)
			continue
		}
		kept = append(kept, acc)
	}
	user.Privy.LinkedAccounts = kept

	if len(result.Dropped) > 0 {
		logger.WithField("dropped", result.Dropped).Info("Skipped accounts linked to other users")
	}

	if err := s.users.WriteUser(ctx, ident.ID, user); err != nil {
		logger.WithError(err).Error("Failed to write new user")
		return result, nil
	}

	logger.WithField("linkedAccounts", len(user.Privy.LinkedAccounts)).Info("Created user record")
	result.User = user
	result.Created = true
	result.Persisted = true
	return result, nil
}

func toLinkedAccount(acc identity.LinkedAccount) models.LinkedAccount {
	return models.LinkedAccount{
		Address:          acc.Address,
		Type:             acc.Type,
		FirstVerifiedAt:  acc.FirstVerifiedAt,
		LatestVerifiedAt: acc.LatestVerifiedAt,
		WalletClientType: acc.WalletClientType,
		ConnectorType:    acc.ConnectorType,
	}
}

// WalletMeta is optional client metadata for an attached wallet
type WalletMeta struct {
	WalletClientType string `json:"walletClientType,omitempty"`
	ConnectorType    string `json:"connectorType,omitempty"`
}

// AttachWallet links a connected wallet to a stored user and makes it the
// default. It returns nil when the user has no record. Embedded wallets only
// arrive through reconciliation, so a client-reported embedded connector is
// stored as injected and claimed like any other wallet.
func (s *AccountService) AttachWallet(ctx context.Context, userID, address string, meta *WalletMeta) (*models.User, error) {
	if address == "" {
		return nil, apperrors.NewInvalidParameterError("address", "wallet address is required")
	}

	user, err := s.users.ReadUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read user", err)
	}
	if user == nil {
		return nil, nil
	}

	if user.HasWallet(address) {
		user.SetDefaultWallet(address)
	} else {
		clientType, connector := types.ConnectorInjected, types.ConnectorInjected
		if meta != nil {
			if meta.WalletClientType != "" {
				clientType = meta.WalletClientType
			}
			if meta.ConnectorType != "" && meta.ConnectorType != types.ConnectorEmbedded {
				connector = meta.ConnectorType
			}
		}

		if err := s.claimWallet(ctx, userID, address); err != nil {
			return nil, err
		}

		now := s.now()
		first, latest := now, now
		isDefault := true
		user.SetDefaultWallet("")
		user.Privy.LinkedAccounts = append(user.Privy.LinkedAccounts, models.LinkedAccount{
			Address:          &address,
			Type:             types.AccountTypeWallet,
			FirstVerifiedAt:  &first,
			LatestVerifiedAt: &latest,
			WalletClientType: &clientType,
			ConnectorType:    &connector,
			IsDefaultWallet:  &isDefault,
		})
	}

	if err := s.users.WriteUser(ctx, userID, user); err != nil {
		return nil, apperrors.NewDatabaseError("write user", err)
	}
	return user, nil
}

func (s *AccountService) claimWallet(ctx context.Context, userID, address string) error {
	claimed, err := s.users.AccountClaimedByOther(ctx, types.AccountTypeWallet, address, userID)
	if err != nil {
		return apperrors.NewDatabaseError("check wallet", err)
	}
	if claimed {
		return apperrors.NewConflictError("Wallet is already linked to another account", fmt.Errorf("%w: %s", ErrAccountClaimed, address))
	}

	ok, err := s.users.ClaimAccount(ctx, types.AccountTypeWallet, address, userID)
	if err != nil {
		return apperrors.NewDatabaseError("claim wallet", err)
	}
	if !ok {
		return apperrors.NewConflictError("Wallet is already linked to another account", fmt.Errorf("%w: %s", ErrAccountClaimed, address))
	}
	return nil
}

// GetUser returns the stored record for an identity id
func (s *AccountService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.ReadUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read user", err)
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user", userID)
	}
	return user, nil
}
