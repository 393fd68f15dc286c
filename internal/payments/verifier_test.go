package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
)

const testSecret = "rzp_secret_for_tests"

type verifierFixture struct {
	store    *fakeStore
	notifier *fakeNotifier
	limiter  *MemoryLimiter
	verifier *Verifier
	owner    uuid.UUID
	record   uuid.UUID
}

func newVerifierFixture(t *testing.T, userScoped bool) *verifierFixture {
	t.Helper()
	f := &verifierFixture{
		store:    newFakeStore(enums.PayableKindOrder, userScoped),
		notifier: &fakeNotifier{},
		limiter:  NewMemoryLimiter(30*time.Minute, 5),
		owner:    uuid.New(),
		record:   uuid.New(),
	}
	owner := f.owner
	bound := "order_abc"
	f.store.put(&Payable{
		ID:              f.record,
		OwnerID:         &owner,
		Amount:          decimal.RequireFromString("500.00"),
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          "pending",
		ProviderOrderID: &bound,
	})
	v, err := NewVerifier(VerifierParams{
		Stores:   []Store{f.store},
		Limiter:  f.limiter,
		Tx:       fakeTx{},
		Notifier: f.notifier,
		Secret:   testSecret,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	f.verifier = v
	return f
}

func (f *verifierFixture) input(actor *uuid.UUID) VerifyInput {
	return VerifyInput{
		Kind:              enums.PayableKindOrder,
		RecordID:          f.record.String(),
		ProviderOrderID:   "order_abc",
		ProviderPaymentID: "pay_xyz",
		Signature:         Sign(testSecret, "order_abc", "pay_xyz"),
		ActorID:           actor,
	}
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := pkgerrors.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func TestVerifySuccessMarksPaidAndNotifies(t *testing.T) {
	f := newVerifierFixture(t, true)
	res, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider.OrderID != "order_abc" || res.Provider.PaymentID != "pay_xyz" {
		t.Fatalf("unexpected provider ref %+v", res.Provider)
	}
	if got := f.store.get(f.record); got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("record not paid: %+v", got)
	}
	if f.notifier.count() != 1 || f.notifier.calls[0].Kind != enums.NotificationKindOrderConfirmed {
		t.Fatalf("expected one confirmation, got %+v", f.notifier.calls)
	}
	if f.limiter.Len() != 0 {
		t.Fatalf("attempt counter should be cleared after success")
	}
}

func TestVerifyTwiceTransitionsOnce(t *testing.T) {
	f := newVerifierFixture(t, true)
	if _, err := f.verifier.Verify(context.Background(), f.input(&f.owner)); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeAlreadyPaid)

	if f.store.markCalls != 1 {
		t.Fatalf("expected one state transition, got %d", f.store.markCalls)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("notifier must not run again, got %d calls", f.notifier.count())
	}
}

func TestVerifyRejectsOtherUserBeforeSignature(t *testing.T) {
	f := newVerifierFixture(t, true)
	intruder := uuid.New()
	in := f.input(&intruder)
	in.Signature = "deadbeef"

	_, err := f.verifier.Verify(context.Background(), in)
	expectCode(t, err, pkgerrors.CodeForbidden)
	if f.store.markCalls != 0 {
		t.Fatal("record must not be touched")
	}
}

func TestVerifyHidesPaidStateFromOtherUsers(t *testing.T) {
	f := newVerifierFixture(t, true)
	if _, err := f.verifier.Verify(context.Background(), f.input(&f.owner)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	intruder := uuid.New()
	_, err := f.verifier.Verify(context.Background(), f.input(&intruder))
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestVerifyRequiresActorForUserScopedKinds(t *testing.T) {
	f := newVerifierFixture(t, true)
	_, err := f.verifier.Verify(context.Background(), f.input(nil))
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestVerifyWithoutUserScopeTrustsServerState(t *testing.T) {
	f := newVerifierFixture(t, false)
	if _, err := f.verifier.Verify(context.Background(), f.input(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyRejectsInvalidSignature(t *testing.T) {
	f := newVerifierFixture(t, true)
	in := f.input(&f.owner)
	in.Signature = Sign("another-secret", "order_abc", "pay_xyz")

	_, err := f.verifier.Verify(context.Background(), in)
	expectCode(t, err, pkgerrors.CodeInvalidSignature)
	if got := f.store.get(f.record); got.PaymentStatus == enums.PaymentStatusPaid {
		t.Fatal("record must stay unpaid")
	}
	if f.notifier.count() != 0 {
		t.Fatal("notifier must not run")
	}
}

func TestVerifyRejectsProviderOrderMismatch(t *testing.T) {
	f := newVerifierFixture(t, true)
	bound := "order_original"
	rec := f.store.records[f.record]
	rec.ProviderOrderID = &bound

	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeOrderMismatch)
}

func TestVerifyRefusesRecordWithoutOpenPayment(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.store.records[f.record].ProviderOrderID = nil

	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeOrderMismatch)
	if f.store.markCalls != 0 {
		t.Fatal("record must not be touched")
	}
}

func TestVerifyReportsRebindDuringSettlementAsMismatch(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.store.beforeMark = func(rec *Payable) {
		rebound := "order_newer"
		rec.ProviderOrderID = &rebound
	}

	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeOrderMismatch)
	if got := f.store.get(f.record); got.PaymentStatus == enums.PaymentStatusPaid {
		t.Fatal("record must stay unpaid")
	}
	if f.notifier.count() != 0 {
		t.Fatal("notifier must not run")
	}
}

func TestVerifyReportsLostStateRace(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.store.beforeMark = func(rec *Payable) {
		rec.Status = "cancelled"
		f.store.stateErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled")
	}

	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestVerifyValidatesInput(t *testing.T) {
	f := newVerifierFixture(t, true)
	cases := map[string]func(in *VerifyInput){
		"record id":  func(in *VerifyInput) { in.RecordID = "42" },
		"order id":   func(in *VerifyInput) { in.ProviderOrderID = "abc" },
		"payment id": func(in *VerifyInput) { in.ProviderPaymentID = "pay_../../" },
		"signature":  func(in *VerifyInput) { in.Signature = "" },
		"long sig":   func(in *VerifyInput) { in.Signature = string(make([]byte, 129)) },
	}
	for name, mutate := range cases {
		in := f.input(&f.owner)
		mutate(&in)
		_, err := f.verifier.Verify(context.Background(), in)
		if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if f.store.loads != 0 {
		t.Fatalf("invalid input must not reach the store")
	}
}

func TestVerifyUnknownRecord(t *testing.T) {
	f := newVerifierFixture(t, true)
	in := f.input(&f.owner)
	in.RecordID = uuid.NewString()
	_, err := f.verifier.Verify(context.Background(), in)
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestVerifyRateLimitsSixthAttempt(t *testing.T) {
	f := newVerifierFixture(t, true)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.limiter.now = func() time.Time { return now }

	bad := f.input(&f.owner)
	bad.Signature = "00"
	for i := 0; i < 5; i++ {
		_, err := f.verifier.Verify(context.Background(), bad)
		expectCode(t, err, pkgerrors.CodeInvalidSignature)
	}

	// a valid request is throttled too
	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeRateLimit)

	malformed := f.input(&f.owner)
	malformed.ProviderPaymentID = "nope"
	_, err = f.verifier.Verify(context.Background(), malformed)
	expectCode(t, err, pkgerrors.CodeRateLimit)

	now = now.Add(31 * time.Minute)
	if _, err := f.verifier.Verify(context.Background(), f.input(&f.owner)); err != nil {
		t.Fatalf("expected success after window reset, got %v", err)
	}
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}
func (failingLimiter) Reset(context.Context, string) error { return errors.New("redis down") }

func TestVerifyFailsOpenWhenLimiterUnavailable(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.verifier.limiter = failingLimiter{}
	if _, err := f.verifier.Verify(context.Background(), f.input(&f.owner)); err != nil {
		t.Fatalf("limiter outage must not block payment: %v", err)
	}
}

func TestVerifyNotifierFailureDoesNotUndoPayment(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.notifier.err = errors.New("insert failed")

	if _, err := f.verifier.Verify(context.Background(), f.input(&f.owner)); err != nil {
		t.Fatalf("notifier failure must not surface: %v", err)
	}
	if got := f.store.get(f.record); got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatal("payment must stay committed")
	}
}

func TestVerifyConcurrentCallsSucceedOnce(t *testing.T) {
	f := newVerifierFixture(t, true)
	gate := &sync.WaitGroup{}
	gate.Add(2)
	f.store.loadGate = gate
	f.store.gatedLoads = 2

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.verifier.Verify(context.Background(), f.input(&f.owner))
		}(i)
	}
	wg.Wait()

	success, alreadyPaid := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case pkgerrors.CodeOf(err) == pkgerrors.CodeAlreadyPaid:
			alreadyPaid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || alreadyPaid != 1 {
		t.Fatalf("expected one success and one already paid, got %d/%d", success, alreadyPaid)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected a single notification, got %d", f.notifier.count())
	}
}

func TestVerifyMissingSecretIsConfigurationError(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.verifier.secret = ""
	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeConfiguration)
}

func TestNewVerifierValidatesParams(t *testing.T) {
	if _, err := NewVerifier(VerifierParams{}); err == nil {
		t.Fatal("expected error without stores")
	}
	if _, err := NewVerifier(VerifierParams{Stores: []Store{newFakeStore(enums.PayableKindOrder, true)}}); err == nil {
		t.Fatal("expected error without limiter")
	}
}

func TestVerifyRefusesRecordInNonPayableState(t *testing.T) {
	f := newVerifierFixture(t, true)
	f.store.stateErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled")
	_, err := f.verifier.Verify(context.Background(), f.input(&f.owner))
	expectCode(t, err, pkgerrors.CodeStateConflict)
	if f.store.markCalls != 0 {
		t.Fatal("record must not be touched")
	}
}
