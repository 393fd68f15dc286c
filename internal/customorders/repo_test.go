package customorders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
)

func setupCustomOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE custom_orders (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  description TEXT NOT NULL,
  estimated_price TEXT,
  status TEXT NOT NULL DEFAULT 'requested',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  razorpay_order_id TEXT,
  razorpay_payment_id TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func seedCustomOrder(t *testing.T, repo Repository, status enums.CustomOrderStatus, price string) *models.CustomOrder {
	t.Helper()
	order := &models.CustomOrder{
		ID:            uuid.New(),
		CustomerName:  "Ravi",
		CustomerEmail: "ravi@example.com",
		Description:   "Set of six glazed tea bowls",
		Status:        status,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
	if price != "" {
		order.EstimatedPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	created, err := repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestStoreLoadMapsEstimate(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	order := seedCustomOrder(t, repo, enums.CustomOrderStatusPaymentPending, "1999.50")

	p, err := store.Load(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, p.Amount.Equal(decimal.RequireFromString("1999.5")))
	require.Nil(t, p.OwnerID)
	require.False(t, p.Paid())
	require.NoError(t, store.CheckPayable(p))

	_, err = store.Load(context.Background(), uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCheckPayableByLifecycle(t *testing.T) {
	store := NewStore(nil)
	price := decimal.NewFromInt(800)

	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(store.CheckPayable(&payments.Payable{Status: "requested", Amount: price})))
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(store.CheckPayable(&payments.Payable{Status: "in_delivery", Amount: price})))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(store.CheckPayable(&payments.Payable{Status: "payment_pending"})))
	require.NoError(t, store.CheckPayable(&payments.Payable{Status: "payment_pending", Amount: price}))
}

func TestMarkPaidMovesToPaymentDone(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	order := seedCustomOrder(t, repo, enums.CustomOrderStatusPaymentPending, "1200.00")
	ctx := context.Background()

	require.NoError(t, store.BindProviderOrder(ctx, order.ID, "order_co1", order.EstimatedPrice.Decimal))

	ok, err := store.MarkPaid(ctx, conn, order.ID, payments.ProviderRef{OrderID: "order_other", PaymentID: "pay_1", PaidAt: time.Now()})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.MarkPaid(ctx, conn, order.ID, payments.ProviderRef{OrderID: "order_co1", PaymentID: "pay_1", PaidAt: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)

	saved, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CustomOrderStatusPaymentDone, saved.Status)
	require.Equal(t, enums.PaymentStatusPaid, saved.PaymentStatus)

	ok, err = store.MarkPaid(ctx, conn, order.ID, payments.ProviderRef{OrderID: "order_co1", PaymentID: "pay_1", PaidAt: time.Now()})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkPaidIgnoresUnpricedOrders(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	repo := NewRepository(conn)
	order := seedCustomOrder(t, repo, enums.CustomOrderStatusRequested, "")

	ok, err := NewStore(repo).MarkPaid(context.Background(), conn, order.ID, payments.ProviderRef{OrderID: "order_x", PaymentID: "pay_x", PaidAt: time.Now()})
	require.NoError(t, err)
	require.False(t, ok)
}

type recordingNotifier struct {
	calls []payments.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, tx *gorm.DB, note payments.Notification) error {
	n.calls = append(n.calls, note)
	return nil
}

func newAdminService(t *testing.T, conn *gorm.DB, notifier payments.Notifier) AdminService {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.Wrap(conn),
		Notifier:  notifier,
		MaxAmount: 500000,
	})
	require.NoError(t, err)
	return svc
}

func TestSetEstimate(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	repo := NewRepository(conn)
	notifier := &recordingNotifier{}
	svc := newAdminService(t, conn, notifier)
	order := seedCustomOrder(t, repo, enums.CustomOrderStatusRequested, "")
	ctx := context.Background()

	updated, err := svc.SetEstimate(ctx, order.ID, decimal.RequireFromString("2400"))
	require.NoError(t, err)
	require.Equal(t, enums.CustomOrderStatusPaymentPending, updated.Status)
	require.True(t, updated.EstimatedPrice.Decimal.Equal(decimal.NewFromInt(2400)))
	require.Len(t, notifier.calls, 1)
	require.Equal(t, enums.NotificationKindCustomStatusChanged, notifier.calls[0].Kind)
	require.Equal(t, "2400.00", notifier.calls[0].Details["estimated_price"])

	// re-pricing drops the provider order opened for the old price
	require.NoError(t, NewStore(repo).BindProviderOrder(ctx, order.ID, "order_old", decimal.NewFromInt(2400)))
	_, err = svc.SetEstimate(ctx, order.ID, decimal.RequireFromString("2600"))
	require.NoError(t, err)
	saved, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Nil(t, saved.RazorpayOrderID)
	require.NotEqual(t, notifier.calls[0].DedupeKey, notifier.calls[1].DedupeKey)

	_, err = svc.SetEstimate(ctx, order.ID, decimal.Zero)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.SetEstimate(ctx, order.ID, decimal.RequireFromString("10.555"))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.SetEstimate(ctx, order.ID, decimal.NewFromInt(500001))
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.SetEstimate(ctx, uuid.New(), decimal.NewFromInt(10))
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestStaleIntentCannotSettleAfterReestimate(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	svc := newAdminService(t, conn, nil)
	order := seedCustomOrder(t, repo, enums.CustomOrderStatusRequested, "")
	ctx := context.Background()

	_, err := svc.SetEstimate(ctx, order.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.NoError(t, store.BindProviderOrder(ctx, order.ID, "order_OLDPRICE", decimal.NewFromInt(1000)))
	_, err = svc.SetEstimate(ctx, order.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)

	verifier, err := payments.NewVerifier(payments.VerifierParams{
		Stores:  []payments.Store{store},
		Limiter: payments.NewMemoryLimiter(30*time.Minute, 5),
		Tx:      db.Wrap(conn),
		Secret:  "kiln_secret",
	})
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, payments.VerifyInput{
		Kind:              enums.PayableKindCustomOrder,
		RecordID:          order.ID.String(),
		ProviderOrderID:   "order_OLDPRICE",
		ProviderPaymentID: "pay_old",
		Signature:         payments.Sign("kiln_secret", "order_OLDPRICE", "pay_old"),
	})
	require.Equal(t, pkgerrors.CodeOrderMismatch, pkgerrors.CodeOf(err))

	saved, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusUnpaid, saved.PaymentStatus)
	require.Equal(t, enums.CustomOrderStatusPaymentPending, saved.Status)

	// the old price can no longer be bound either
	err = store.BindProviderOrder(ctx, order.ID, "order_OLDPRICE", decimal.NewFromInt(1000))
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestSetEstimateRefusedAfterPayment(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	svc := newAdminService(t, conn, nil)
	order := seedCustomOrder(t, NewRepository(conn), enums.CustomOrderStatusPaymentDone, "900")

	_, err := svc.SetEstimate(context.Background(), order.ID, decimal.NewFromInt(1000))
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestAdvanceStatus(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	notifier := &recordingNotifier{}
	svc := newAdminService(t, conn, notifier)
	order := seedCustomOrder(t, NewRepository(conn), enums.CustomOrderStatusPaymentDone, "900")
	ctx := context.Background()

	_, err := svc.AdvanceStatus(ctx, order.ID, enums.CustomOrderStatusInDelivery)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	for _, next := range []enums.CustomOrderStatus{
		enums.CustomOrderStatusInProgress,
		enums.CustomOrderStatusInDelivery,
		enums.CustomOrderStatusDelivered,
	} {
		updated, err := svc.AdvanceStatus(ctx, order.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, updated.Status)
	}
	require.Len(t, notifier.calls, 3)

	_, err = svc.AdvanceStatus(ctx, order.ID, enums.CustomOrderStatusPaymentDone)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.AdvanceStatus(ctx, order.ID, "shipped")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestAdvanceStatusRequiresPayment(t *testing.T) {
	conn := setupCustomOrdersTestDB(t)
	svc := newAdminService(t, conn, nil)
	order := seedCustomOrder(t, NewRepository(conn), enums.CustomOrderStatusPaymentPending, "900")

	_, err := svc.AdvanceStatus(context.Background(), order.ID, enums.CustomOrderStatusInProgress)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}
