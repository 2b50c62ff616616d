// Package storage persists user records as JSON documents in the KV store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/types"
)

// legacySentinel is a placeholder value older tooling left in the keyspace
const legacySentinel = "testValue"

// accountIndexNamespace prefixes secondary-index keys: account:<type>:<address>
const accountIndexNamespace = "account:"

// ErrStore marks failures of the underlying KV store
var ErrStore = errors.New("record store failure")

// StoreError wraps a KV failure with the operation and key
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// UserStoreOptions configures a UserStore
type UserStoreOptions struct {
	// KeyPrefix namespaces user keys; empty keeps raw identity ids as keys
	KeyPrefix string
	// ScanFallback enables the full-keyspace scan when the account index has no entry
	ScanFallback bool
	Logger       *logging.Logger
}

// UserStore reads and writes user documents keyed by identity id
type UserStore struct {
	cache        *RedisCache
	prefix       string
	scanFallback bool
	logger       *logging.Logger
}

// NewUserStore creates a new user store
func NewUserStore(cache *RedisCache, opts UserStoreOptions) *UserStore {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &UserStore{
		cache:        cache,
		prefix:       opts.KeyPrefix,
		scanFallback: opts.ScanFallback,
		logger:       logger.WithField("component", "user_store"),
	}
}

func (s *UserStore) userKey(id string) string {
	return s.prefix + id
}

func (s *UserStore) indexKey(accountType, address string) string {
	return s.prefix + accountIndexNamespace + accountType + ":" + strings.ToLower(address)
}

// WriteUser replaces the whole document stored under key
func (s *UserStore) WriteUser(ctx context.Context, key string, user *models.User) error {
	raw, err := encodeUser(user)
	if err != nil {
		return fmt.Errorf("encode user %q: %w", key, err)
	}

	if err := s.cache.Set(ctx, s.userKey(key), string(raw)); err != nil {
		return &StoreError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// ReadUser returns the user stored under key, or nil when the key is missing
// or holds something that is not a user document.
func (s *UserStore) ReadUser(ctx context.Context, key string) (*models.User, error) {
	raw, err := s.cache.Get(ctx, s.userKey(key))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &StoreError{Op: "read", Key: key, Err: err}
	}

	if raw == "" || raw == legacySentinel {
		return nil, nil
	}

	user, err := decodeUser([]byte(raw))
	if err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("Skipping unparseable user record")
		return nil, nil
	}
	return user, nil
}

// Keys lists every user key (without the store prefix), skipping index entries
func (s *UserStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	indexPrefix := s.prefix + accountIndexNamespace

	err := s.cache.Scan(ctx, s.prefix+"*", func(key string) bool {
		if strings.HasPrefix(key, indexPrefix) || key == connectionTestKey {
			return true
		}
		keys = append(keys, strings.TrimPrefix(key, s.prefix))
		return true
	})
	if err != nil {
		return nil, &StoreError{Op: "scan", Err: err}
	}
	return keys, nil
}

// eachUser calls fn for every readable user document until fn returns false
func (s *UserStore) eachUser(ctx context.Context, fn func(key string, u *models.User) bool) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		u, err := s.ReadUser(ctx, key)
		if err != nil {
			return err
		}
		if u == nil {
			continue
		}
		if !fn(key, u) {
			return nil
		}
	}
	return nil
}

// claimable reports whether a stored account counts toward uniqueness.
// Embedded wallets are provider-managed and never block another user.
func claimable(acc models.LinkedAccount) bool {
	return !(acc.IsWallet() && acc.IsEmbedded())
}

// AccountOwner returns the identity id holding the index claim for an account, or ""
func (s *UserStore) AccountOwner(ctx context.Context, accountType, address string) (string, error) {
	owner, err := s.cache.Get(ctx, s.indexKey(accountType, address))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", &StoreError{Op: "index read", Key: address, Err: err}
	}
	return owner, nil
}

// ClaimAccount atomically records ownerID as the holder of an account. It
// returns false when another identity already holds the claim.
func (s *UserStore) ClaimAccount(ctx context.Context, accountType, address, ownerID string) (bool, error) {
	ok, err := s.cache.SetNX(ctx, s.indexKey(accountType, address), ownerID)
	if err != nil {
		return false, &StoreError{Op: "index claim", Key: address, Err: err}
	}
	if ok {
		return true, nil
	}

	owner, err := s.AccountOwner(ctx, accountType, address)
	if err != nil {
		return false, err
	}
	return owner == ownerID, nil
}

// IndexUser claims every claimable account of a stored user. Accounts held
// by someone else are returned as conflicts.
func (s *UserStore) IndexUser(ctx context.Context, key string, user *models.User) ([]string, error) {
	var conflicts []string
	for _, acc := range user.Privy.LinkedAccounts {
		if acc.Address == nil || !claimable(acc) {
			continue
		}
		ok, err := s.ClaimAccount(ctx, acc.Type, *acc.Address, key)
		if err != nil {
			return conflicts, err
		}
		if !ok {
			conflicts = append(conflicts, *acc.Address)
		}
	}
	return conflicts, nil
}

// accountHolder returns the key of the user claiming an account, or "". The
// index is consulted first; the keyspace scan covers records written before
// the index existed.
func (s *UserStore) accountHolder(ctx context.Context, accountType, address string) (string, error) {
	owner, err := s.AccountOwner(ctx, accountType, address)
	if err != nil {
		return "", err
	}
	if owner != "" || !s.scanFallback {
		return owner, nil
	}

	holder := ""
	err = s.eachUser(ctx, func(key string, u *models.User) bool {
		for _, acc := range u.Privy.LinkedAccounts {
			if acc.Type == accountType && acc.AddressValue() == address && claimable(acc) {
				holder = key
				return false
			}
		}
		return true
	})
	if err != nil {
		return "", err
	}
	return holder, nil
}

// AccountExists reports whether any stored user already claims an account of
// the given type and address. Embedded wallets never count.
func (s *UserStore) AccountExists(ctx context.Context, accountType, address string) (bool, error) {
	holder, err := s.accountHolder(ctx, accountType, address)
	if err != nil {
		return false, err
	}
	return holder != "", nil
}

// AccountClaimedByOther reports whether a user other than ownerID claims the account
func (s *UserStore) AccountClaimedByOther(ctx context.Context, accountType, address, ownerID string) (bool, error) {
	holder, err := s.accountHolder(ctx, accountType, address)
	if err != nil {
		return false, err
	}
	return holder != "" && holder != ownerID, nil
}

// FindByInjectedWallet returns the user that holds address as a non-embedded wallet
func (s *UserStore) FindByInjectedWallet(ctx context.Context, address string) (*models.User, error) {
	owner, err := s.AccountOwner(ctx, types.AccountTypeWallet, address)
	if err != nil {
		return nil, err
	}
	if owner != "" {
		u, err := s.ReadUser(ctx, owner)
		if err != nil || u != nil {
			return u, err
		}
	}
	if !s.scanFallback {
		return nil, nil
	}

	var match *models.User
	err = s.eachUser(ctx, func(_ string, u *models.User) bool {
		for _, acc := range u.Privy.LinkedAccounts {
			if acc.IsWallet() && acc.AddressValue() == address && !acc.IsEmbedded() {
				match = u
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Reindex rebuilds index claims from every stored document and returns the
// number of users visited.
func (s *UserStore) Reindex(ctx context.Context) (int, error) {
	visited := 0
	var firstErr error
	err := s.eachUser(ctx, func(key string, u *models.User) bool {
		visited++
		conflicts, err := s.IndexUser(ctx, key, u)
		if err != nil {
			firstErr = err
			return false
		}
		if len(conflicts) > 0 {
			s.logger.WithFields(map[string]interface{}{
				"key":       key,
				"conflicts": conflicts,
			}).Warn("Accounts already claimed by another user")
		}
		return true
	})
	if err != nil {
		return visited, err
	}
	return visited, firstErr
}

// CheckConnection runs the store's set/get/delete round trip
func (s *UserStore) CheckConnection(ctx context.Context) error {
	return s.cache.CheckConnection(ctx)
}
