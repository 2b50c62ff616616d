package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/service"
	"github.com/web3-storefront/internal/storage"
)

// storeBackedServer wires the account service to a miniredis record store
// and seeds one record per identity
func storeBackedServer(tb testing.TB, identities int) *Server {
	tb.Helper()

	mr := miniredis.RunT(tb)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = client.Close() })

	store := storage.NewUserStore(storage.NewRedisCacheFromClient(client), storage.UserStoreOptions{
		Logger: logging.Discard(),
	})
	accounts := service.NewAccountService(store, nil, logging.Discard())

	ctx := context.Background()
	for i := 0; i < identities; i++ {
		ident := &identity.PrivyUser{ID: fmt.Sprintf("user-%d", i), CreatedAt: time.Now()}
		if _, err := accounts.Reconcile(ctx, ident); err != nil {
			tb.Fatalf("seed %s: %v", ident.ID, err)
		}
	}

	return createTestServer(func(d *Dependencies) {
		d.Accounts = accounts
		d.Store = store
	})
}

// TestConcurrentProfileReads has many signed-in callers read their own record at once
func TestConcurrentProfileReads(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	const callers = 100
	const requestsPerCaller = 5
	server := storeBackedServer(t, callers)

	var wg sync.WaitGroup
	var failures, mixups int64
	start := time.Now()

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < requestsPerCaller; j++ {
				w := doRequest(server, "GET", "/api/users/me", nil, "valid-"+id)
				if w.Code != http.StatusOK {
					atomic.AddInt64(&failures, 1)
					continue
				}
				var u models.User
				if err := json.NewDecoder(w.Body).Decode(&u); err != nil || u.ID != id {
					atomic.AddInt64(&mixups, 1)
				}
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	total := callers * requestsPerCaller
	t.Logf("%d profile reads in %v", total, time.Since(start))

	if failures > 0 {
		t.Errorf("Expected every read to succeed, %d failed", failures)
	}
	if mixups > 0 {
		t.Errorf("Expected every caller to get its own record, %d did not", mixups)
	}
}

func TestProfileReadForUnknownIdentity(t *testing.T) {
	server := storeBackedServer(t, 1)

	w := doRequest(server, "GET", "/api/users/me", nil, "valid-stranger")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func BenchmarkProfileRead(b *testing.B) {
	server := storeBackedServer(b, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doRequest(server, "GET", "/api/users/me", nil, "valid-user-0")
	}
}

func BenchmarkCreatePaymentIntent(b *testing.B) {
	server := createTestServer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doRequest(server, "POST", "/api/create-payment-intent", `{"amount": 9.99}`, "")
	}
}
