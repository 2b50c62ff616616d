package service

import (
	"context"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/models"
)

// PaymentOptions configures the payment services
type PaymentOptions struct {
	// StrictRecording returns bookkeeping failures to the caller instead of
	// logging them after a payment has already gone through
	StrictRecording bool
	Now             Clock
	Logger          *logging.Logger
}

// paymentRecorder appends payment records to stored users
type paymentRecorder struct {
	users  UserRepository
	strict bool
	logger *logging.Logger
}

func newPaymentRecorder(users UserRepository, opts PaymentOptions, component string) *paymentRecorder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &paymentRecorder{
		users:  users,
		strict: opts.StrictRecording,
		logger: logger.WithField("component", component),
	}
}

// record prepends rec to the user's payments and marks the user as paid. It
// reports whether a write happened. A payment id already on the record is
// not recorded twice.
func (r *paymentRecorder) record(ctx context.Context, userID string, rec models.PaymentRecord) (bool, error) {
	logger := r.logger.WithIdentity(userID).WithField("paymentId", rec.IDHash)

	user, err := r.users.ReadUser(ctx, userID)
	if err != nil {
		return false, r.fail(logger, apperrors.NewDatabaseError("read user", err))
	}
	if user == nil {
		return false, r.fail(logger, apperrors.NewNotFoundError("user", userID))
	}

	if user.HasPayment(rec.IDHash) {
		logger.Info("Payment already recorded")
		return false, nil
	}

	user.PrependPayment(rec)
	if err := r.users.WriteUser(ctx, userID, user); err != nil {
		return false, r.fail(logger, apperrors.NewDatabaseError("write user", err))
	}

	logger.WithFields(map[string]interface{}{
		"type":   rec.Type,
		"amount": rec.Amount,
		"status": rec.Status,
	}).Info("Payment recorded")
	return true, nil
}

func (r *paymentRecorder) fail(logger *logging.Logger, err *apperrors.CategorizedError) error {
	logger.WithError(err).Error("Payment succeeded but could not be recorded")
	if r.strict {
		return err
	}
	return nil
}
