// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/web3-storefront/internal/catalog"
	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/payment"
	"github.com/web3-storefront/internal/service"
	"github.com/web3-storefront/internal/types"
)

// Service interfaces for dependency injection and testing

// AccountServiceInterface defines the account operations the API exposes
type AccountServiceInterface interface {
	Reconcile(ctx context.Context, ident *identity.PrivyUser) (*service.ReconcileResult, error)
	AttachWallet(ctx context.Context, userID, address string, meta *service.WalletMeta) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// CardPaymentServiceInterface defines the card payment operations
type CardPaymentServiceInterface interface {
	CreateIntent(ctx context.Context, identityID string, dollars decimal.Decimal) (*payment.Intent, error)
	ConfirmIntent(ctx context.Context, userID, intentID string) (*service.ConfirmResult, error)
	IntentStatus(ctx context.Context, intentID string) (string, error)
}

// CryptoPaymentServiceInterface defines the crypto payment operations
type CryptoPaymentServiceInterface interface {
	Verify(ctx context.Context, req service.VerifyRequest) (*service.PayResult, error)
	Balance(ctx context.Context, chainID types.ChainID, address string) (string, error)
}

// IdentityDirectory looks up identity profiles by id
type IdentityDirectory interface {
	GetUser(ctx context.Context, id string) (*identity.PrivyUser, error)
}

// DownloadLinker issues product download links
type DownloadLinker interface {
	URL(ctx context.Context, product catalog.Product, user *models.User) (string, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	CheckConnection(ctx context.Context) error
}

// Dependencies are the collaborators the handlers call
type Dependencies struct {
	Accounts  AccountServiceInterface
	Cards     CardPaymentServiceInterface
	Crypto    CryptoPaymentServiceInterface
	Verifier  TokenVerifier
	Directory IdentityDirectory
	Catalog   *catalog.Catalog
	Downloads DownloadLinker
	Store     HealthChecker
	// Tier resolves rate-limit tiers; nil treats everyone as free
	Tier   TierFunc
	Logger *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int // Requests per second for anonymous and unpaid callers
	PaidTierRPS     int // Requests per second for paid users
	Burst           int // Requests a caller may make at once; 0 uses the default
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: logger,
		config: config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.PaidTierRPS, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(AuthMiddleware(s.deps.Verifier))
	s.router.Use(RateLimitMiddleware(rateLimiter, s.deps.Tier))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Public endpoints
	api.HandleFunc("/create-payment-intent", s.handleCreatePaymentIntent).Methods("POST")
	api.HandleFunc("/networks", s.handleListNetworks).Methods("GET")
	api.HandleFunc("/products", s.handleListProducts).Methods("GET")
	api.HandleFunc("/products/{id:[0-9]+}", s.handleGetProduct).Methods("GET")
	api.HandleFunc("/balances/{chainId:[0-9]+}/{address}", s.handleGetBalance).Methods("GET")

	// Signed-in endpoints
	authed := api.NewRoute().Subrouter()
	authed.Use(RequireIdentity)
	authed.HandleFunc("/session", s.handleSession).Methods("POST")
	authed.HandleFunc("/users/me", s.handleGetMe).Methods("GET")
	authed.HandleFunc("/users/me/wallets", s.handleAttachWallet).Methods("POST")
	authed.HandleFunc("/payments/card/confirm", s.handleConfirmCardPayment).Methods("POST")
	authed.HandleFunc("/payment-intents/{id}", s.handleGetPaymentIntent).Methods("GET")
	authed.HandleFunc("/payments/crypto/verify", s.handleVerifyCryptoPayment).Methods("POST")
	authed.HandleFunc("/products/{id:[0-9]+}/download", s.handleDownloadProduct).Methods("GET")

	// preflight requests are answered by CORSMiddleware
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":  "healthy",
		"service": "web3-storefront",
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.CheckConnection(r.Context()); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Record store health check failed")
			status["status"] = "degraded"
			status["store"] = "unreachable"
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["store"] = "ok"
	}

	respondJSON(w, http.StatusOK, status)
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
