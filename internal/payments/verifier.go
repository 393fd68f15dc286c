package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/metrics"
)

const maxSignatureLength = 128

var errNotSettled = errors.New("record not settled")

var (
	providerOrderIDPattern   = regexp.MustCompile(`^order_[A-Za-z0-9]{1,40}$`)
	providerPaymentIDPattern = regexp.MustCompile(`^pay_[A-Za-z0-9]{1,40}$`)
)

// VerifyInput is the provider callback for one local record.
type VerifyInput struct {
	Kind              enums.PayableKind
	RecordID          string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	ActorID           *uuid.UUID
}

// VerifyResult describes the settled record.
type VerifyResult struct {
	Record   *Payable
	Provider ProviderRef
}

type VerifierParams struct {
	Stores   []Store
	Limiter  AttemptLimiter
	Tx       txRunner
	Notifier Notifier
	Secret   string
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Verifier runs the gate pipeline shared by every payable kind.
type Verifier struct {
	stores   map[enums.PayableKind]Store
	limiter  AttemptLimiter
	tx       txRunner
	notifier Notifier
	secret   string
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewVerifier(params VerifierParams) (*Verifier, error) {
	if len(params.Stores) == 0 {
		return nil, fmt.Errorf("at least one payable store required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("attempt limiter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		stores:   indexStores(params.Stores),
		limiter:  params.Limiter,
		tx:       params.Tx,
		notifier: params.Notifier,
		secret:   params.Secret,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Verify settles a record once the provider's signature checks out. Gates run
// in a fixed order: record id, attempt limit, remaining input, load,
// ownership, already paid, lifecycle state, provider order binding, signature.
// Only then is the record updated. The notification is recorded best-effort
// in the same transaction.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	res, err := v.verify(ctx, in)
	v.metrics.IncVerification(string(in.Kind), outcomeOf(err, "verified"))
	return res, err
}

func (v *Verifier) verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	store, ok := v.stores[in.Kind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payable kind %q", in.Kind))
	}
	if v.secret == "" {
		v.logg.Error(ctx, "payment verification secret not configured", nil)
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "razorpay key secret missing")
	}

	recordID, err := uuid.Parse(strings.TrimSpace(in.RecordID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a valid UUID", store.RecordField()))
	}
	ctx = v.logg.WithRecord(ctx, string(in.Kind), recordID.String())

	limitKey := string(in.Kind) + ":" + recordID.String()
	decision, err := v.limiter.Check(ctx, limitKey)
	if err != nil {
		v.logg.Warn(ctx, fmt.Sprintf("attempt limiter unavailable, allowing request: %v", err))
	} else if !decision.Allowed {
		v.metrics.IncThrottled(string(in.Kind))
		v.logg.Warn(ctx, fmt.Sprintf("verification throttled after %d attempts", decision.Attempts))
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification attempts")
	}

	if err := validateCallback(in); err != nil {
		return nil, err
	}

	record, err := store.Load(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if store.UserScoped() {
		if in.ActorID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
		}
		if !record.OwnedBy(*in.ActorID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "record not owned by caller")
		}
	}

	if record.Paid() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "payment already completed")
	}
	if err := store.CheckPayable(record); err != nil {
		return nil, err
	}

	if err := v.checkBinding(ctx, record, in.ProviderOrderID); err != nil {
		return nil, err
	}

	if !VerifySignature(v.secret, in.ProviderOrderID, in.ProviderPaymentID, in.Signature) {
		v.logg.Warn(ctx, "payment signature rejected")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")
	}

	ref := ProviderRef{
		OrderID:   in.ProviderOrderID,
		PaymentID: in.ProviderPaymentID,
		PaidAt:    v.now().UTC(),
	}
	err = v.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := store.MarkPaid(ctx, tx, recordID, ref)
		if err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark record paid")
		}
		if !updated {
			return errNotSettled
		}
		v.notify(ctx, tx, store, record, ref)
		return nil
	})
	if errors.Is(err, errNotSettled) {
		return nil, v.explainLostUpdate(ctx, store, recordID, in.ProviderOrderID)
	}
	if err != nil {
		return nil, err
	}

	if err := v.limiter.Reset(ctx, limitKey); err != nil {
		v.logg.Warn(ctx, fmt.Sprintf("clear attempt counter: %v", err))
	}

	record.PaymentStatus = enums.PaymentStatusPaid
	record.PaymentCompleted = true
	orderID := ref.OrderID
	record.ProviderOrderID = &orderID

	v.logg.Info(ctx, "payment verified")
	return &VerifyResult{Record: record, Provider: ref}, nil
}

// checkBinding requires the callback to name the provider order opened for
// the record. Records with no bound order are refused.
func (v *Verifier) checkBinding(ctx context.Context, record *Payable, providerOrderID string) error {
	if !record.Bound() {
		v.logg.Warn(ctx, "verification for a record with no open provider order")
		return pkgerrors.New(pkgerrors.CodeOrderMismatch, "no payment has been opened for this record")
	}
	if *record.ProviderOrderID != providerOrderID {
		v.logg.Warn(ctx, "provider order id does not match the record binding")
		return pkgerrors.New(pkgerrors.CodeOrderMismatch, "provider order id mismatch")
	}
	return nil
}

// explainLostUpdate reloads a record whose compare-and-swap matched no row and
// reports what changed underneath the request.
func (v *Verifier) explainLostUpdate(ctx context.Context, store Store, id uuid.UUID, providerOrderID string) error {
	current, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	if current.Paid() {
		return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "payment already completed")
	}
	if err := v.checkBinding(ctx, current, providerOrderID); err != nil {
		return err
	}
	if err := store.CheckPayable(current); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "record changed while verifying payment")
}

func (v *Verifier) notify(ctx context.Context, tx *gorm.DB, store Store, record *Payable, ref ProviderRef) {
	if v.notifier == nil {
		return
	}
	n := Notification{Kind: store.ConfirmationKind(), Record: record, Provider: &ref}
	if err := v.notifier.Notify(ctx, tx, n); err != nil {
		v.logg.Error(ctx, "record payment notification", err)
	}
}

func validateCallback(in VerifyInput) error {
	if !providerOrderIDPattern.MatchString(in.ProviderOrderID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "razorpay_order_id is malformed")
	}
	if !providerPaymentIDPattern.MatchString(in.ProviderPaymentID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "razorpay_payment_id is malformed")
	}
	if in.Signature == "" || len(in.Signature) > maxSignatureLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "razorpay_signature is malformed")
	}
	return nil
}

func outcomeOf(err error, success string) string {
	if err == nil {
		return success
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
