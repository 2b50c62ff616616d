package service

import (
	"context"

	"github.com/shopspring/decimal"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/payment"
	"github.com/web3-storefront/internal/types"
)

// Fallback messages when the provider gives none
const (
	msgCreateIntentFailed   = "Error creating payment intent"
	msgRetrieveIntentFailed = "Error retrieving payment intent"
	msgIntentNotYours       = "Payment intent belongs to another account"
)

// intentClaimType namespaces payment intent claims in the account index
const intentClaimType = "payment_intent"

// CardPaymentService runs card payments through the payment-intent provider
type CardPaymentService struct {
	gateway  payment.Gateway
	recorder *paymentRecorder
	now      Clock
}

// NewCardPaymentService creates a new card payment service
func NewCardPaymentService(gateway payment.Gateway, users UserRepository, opts PaymentOptions) *CardPaymentService {
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	return &CardPaymentService{
		gateway:  gateway,
		recorder: newPaymentRecorder(users, opts, "card_payments"),
		now:      now,
	}
}

// CreateIntent opens a payment intent for a dollar amount. Amounts under the
// minimum are rejected before the provider is called. identityID, when set,
// is stored on the intent so only that identity can confirm it.
func (s *CardPaymentService) CreateIntent(ctx context.Context, identityID string, dollars decimal.Decimal) (*payment.Intent, error) {
	cents, err := payment.ToMinorUnits(dollars)
	if err != nil {
		verr := apperrors.NewInvalidParameterError("amount", "amount is too large")
		verr.Cause = err
		return nil, verr
	}
	if err := payment.CheckMinimum(cents); err != nil {
		verr := apperrors.NewValidationError("AMOUNT_TOO_SMALL", payment.MinimumMessage)
		verr.Cause = err
		return nil, verr
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, cents, identityID)
	if err != nil {
		return nil, apperrors.NewProviderError("stripe", providerMessage(err, msgCreateIntentFailed), err)
	}
	return intent, nil
}

// ConfirmResult is the outcome of a card payment confirmation
type ConfirmResult struct {
	Intent *payment.Intent `json:"-"`
	// Outcome is succeeded, processing or failed
	Outcome  string                `json:"outcome"`
	Recorded bool                  `json:"recorded"`
	Payment  *models.PaymentRecord `json:"payment,omitempty"`
}

// ConfirmIntent checks an intent with the provider and, when it succeeded,
// records the payment on the user. An intent opened for another identity, or
// already confirmed by one, is refused.
func (s *CardPaymentService) ConfirmIntent(ctx context.Context, userID, intentID string) (*ConfirmResult, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthorizedError("Please sign in to continue")
	}
	if intentID == "" {
		return nil, apperrors.NewInvalidParameterError("paymentIntentId", "payment intent id is required")
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, apperrors.NewProviderError("stripe", providerMessage(err, msgRetrieveIntentFailed), err)
	}

	result := &ConfirmResult{
		Intent:  intent,
		Outcome: payment.IntentOutcome(intent.Status),
	}
	if result.Outcome != types.PaymentStatusSucceeded {
		return result, nil
	}
	if err := s.claimIntent(ctx, userID, intent); err != nil {
		return nil, err
	}

	rec := models.NewPaymentRecord(
		intent.ID,
		types.ChainNone,
		payment.FromMinorUnits(intent.Amount),
		intent.Currency,
		intent.Status,
		types.PaymentTypeCard,
		intent.Created,
		s.now(),
	)
	result.Payment = &rec

	recorded, err := s.recorder.record(ctx, userID, rec)
	if err != nil {
		return result, err
	}
	result.Recorded = recorded
	return result, nil
}

// claimIntent binds a succeeded intent to the first identity that confirms it
func (s *CardPaymentService) claimIntent(ctx context.Context, userID string, intent *payment.Intent) error {
	if intent.IdentityID != "" && intent.IdentityID != userID {
		return apperrors.NewForbiddenError(msgIntentNotYours)
	}

	ok, err := s.recorder.users.ClaimAccount(ctx, intentClaimType, intent.ID, userID)
	if err != nil {
		return apperrors.NewDatabaseError("claim payment intent", err)
	}
	if !ok {
		return apperrors.NewForbiddenError(msgIntentNotYours)
	}
	return nil
}

// IntentStatus returns the shopper-facing outcome of an intent
func (s *CardPaymentService) IntentStatus(ctx context.Context, intentID string) (string, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return "", apperrors.NewProviderError("stripe", providerMessage(err, msgRetrieveIntentFailed), err)
	}
	return payment.IntentOutcome(intent.Status), nil
}

func providerMessage(err error, fallback string) string {
	if msg := payment.ErrorMessage(err); msg != "" {
		return msg
	}
	return fallback
}
