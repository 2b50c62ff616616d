package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/storage"
)

var fixedNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func ptr[T any](v T) *T { return &v }

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func setupUserStore(t *testing.T) (*storage.UserStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewUserStore(storage.NewRedisCacheFromClient(client), storage.UserStoreOptions{
		ScanFallback: true,
		Logger:       logging.Discard(),
	})
	return store, mr
}

// failingWrites wraps a store and fails every write
type failingWrites struct {
	*storage.UserStore
	err error
}

func (f failingWrites) WriteUser(ctx context.Context, key string, user *models.User) error {
	return f.err
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, status, apperrors.GetHTTPStatusCode(err))
}
