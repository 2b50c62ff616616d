package payment

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/web3-storefront/internal/types"
)

// Currency charged for every card payment
const Currency = "usd"

// MetadataIdentity is the intent metadata key naming the identity that opened it
const MetadataIdentity = "identity_id"

// Intent is the provider's payment intent as the storefront sees it
type Intent struct {
	ID           string
	ClientSecret string
	// Amount is in minor units
	Amount   int64
	Currency string
	Status   string
	Created  time.Time
	// IdentityID is the signed-in identity the intent was opened for, "" when anonymous
	IdentityID string
}

// Gateway creates and retrieves payment intents
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, minorUnits int64, identityID string) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
}

// intentsAPI is the part of the Stripe client the gateway calls
type intentsAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway implements Gateway on the Stripe API
type StripeGateway struct {
	intents intentsAPI
}

// NewStripeGateway creates a gateway authenticated with the secret key
func NewStripeGateway(secretKey string) *StripeGateway {
	sc := client.New(secretKey, nil)
	return &StripeGateway{intents: sc.PaymentIntents}
}

// CreatePaymentIntent opens a card-only USD intent for the amount, tagged with
// the identity when one is known
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, minorUnits int64, identityID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(minorUnits),
		Currency:           stripe.String(Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(false),
		},
	}
	params.Context = ctx
	if identityID != "" {
		params.AddMetadata(MetadataIdentity, identityID)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripe(pi), nil
}

// GetPaymentIntent retrieves an intent by id
func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(id, params)
	if err != nil {
		return nil, err
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Created:      time.Unix(pi.Created, 0).UTC(),
		IdentityID:   pi.Metadata[MetadataIdentity],
	}
}

// ErrorMessage returns the provider's human-readable message for err
func ErrorMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

// IntentOutcome maps a provider status to what the shopper is told
func IntentOutcome(status string) string {
	switch status {
	case string(stripe.PaymentIntentStatusSucceeded):
		return types.PaymentStatusSucceeded
	case string(stripe.PaymentIntentStatusProcessing):
		return types.PaymentStatusProcessing
	default:
		return types.PaymentStatusFailed
	}
}
