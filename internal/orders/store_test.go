package orders

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
	"github.com/angelmondragon/kilnpay/pkg/razorpay"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  razorpay_order_id TEXT,
  razorpay_payment_id TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	require.NoError(t, conn.Exec(`CREATE UNIQUE INDEX ux_orders_razorpay_payment_id ON orders(razorpay_payment_id) WHERE razorpay_payment_id IS NOT NULL`).Error)
	return conn
}

func seedOrder(t *testing.T, repo Repository, owner uuid.UUID, amount string) *models.Order {
	t.Helper()
	order, err := repo.Create(context.Background(), &models.Order{
		ID:            uuid.New(),
		UserID:        owner,
		TotalAmount:   decimal.RequireFromString(amount),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		CustomerName:  "Meera",
		CustomerEmail: "meera@example.com",
	})
	require.NoError(t, err)
	return order
}

func TestStoreLoad(t *testing.T) {
	conn := setupOrdersTestDB(t)
	store := NewStore(NewRepository(conn))
	owner := uuid.New()
	order := seedOrder(t, NewRepository(conn), owner, "1999.50")

	p, err := store.Load(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayableKindOrder, p.Kind)
	require.True(t, p.OwnedBy(owner))
	require.True(t, p.Amount.Equal(decimal.RequireFromString("1999.5")))
	require.Equal(t, "meera@example.com", p.CustomerEmail)

	_, err = store.Load(context.Background(), uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestMarkPaidIsCompareAndSwap(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	order := seedOrder(t, repo, uuid.New(), "500.00")
	ref := payments.ProviderRef{OrderID: "order_abc", PaymentID: "pay_xyz", PaidAt: time.Now().UTC()}
	require.NoError(t, store.BindProviderOrder(context.Background(), order.ID, "order_abc", order.TotalAmount))

	ok, err := store.MarkPaid(context.Background(), conn, order.ID, ref)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.MarkPaid(context.Background(), conn, order.ID, ref)
	require.NoError(t, err)
	require.False(t, ok)

	saved, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, saved.PaymentStatus)
	require.Equal(t, enums.OrderStatusConfirmed, saved.Status)
	require.Equal(t, "pay_xyz", *saved.RazorpayPaymentID)
	require.NotNil(t, saved.PaidAt)
}

func TestMarkPaidRequiresBoundProviderOrder(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	order := seedOrder(t, repo, uuid.New(), "500.00")

	ok, err := store.MarkPaid(context.Background(), conn, order.ID, payments.ProviderRef{OrderID: "order_any", PaymentID: "pay_0", PaidAt: time.Now()})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.BindProviderOrder(context.Background(), order.ID, "order_bound", order.TotalAmount))

	ok, err = store.MarkPaid(context.Background(), conn, order.ID, payments.ProviderRef{OrderID: "order_other", PaymentID: "pay_1", PaidAt: time.Now()})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.MarkPaid(context.Background(), conn, order.ID, payments.ProviderRef{OrderID: "order_bound", PaymentID: "pay_1", PaidAt: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)

	err = store.BindProviderOrder(context.Background(), order.ID, "order_late", order.TotalAmount)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestBindProviderOrderChecksTotal(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	order := seedOrder(t, repo, uuid.New(), "10000.00")

	err := store.BindProviderOrder(context.Background(), order.ID, "order_cheap", decimal.NewFromInt(1))
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	saved, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Nil(t, saved.RazorpayOrderID)
}

func TestMarkPaidRejectsReusedPaymentID(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	first := seedOrder(t, repo, uuid.New(), "100.00")
	second := seedOrder(t, repo, uuid.New(), "100.00")

	require.NoError(t, store.BindProviderOrder(context.Background(), first.ID, "order_a", first.TotalAmount))
	require.NoError(t, store.BindProviderOrder(context.Background(), second.ID, "order_b", second.TotalAmount))

	_, err := store.MarkPaid(context.Background(), conn, first.ID, payments.ProviderRef{OrderID: "order_a", PaymentID: "pay_same", PaidAt: time.Now()})
	require.NoError(t, err)

	_, err = store.MarkPaid(context.Background(), conn, second.ID, payments.ProviderRef{OrderID: "order_b", PaymentID: "pay_same", PaidAt: time.Now()})
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestCheckPayableRefusesCancelledOrders(t *testing.T) {
	store := NewStore(nil)
	require.Error(t, store.CheckPayable(&payments.Payable{Status: string(enums.OrderStatusCancelled)}))
	require.NoError(t, store.CheckPayable(&payments.Payable{Status: string(enums.OrderStatusPending)}))
}

type stubProvider struct {
	orderID string
}

func (p stubProvider) CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	return &razorpay.Order{ID: p.orderID, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

func (stubProvider) KeyID() string { return "rzp_test_kiln" }

func newCheckout(t *testing.T, conn *gorm.DB, store *Store, providerOrderID string) (*payments.IntentCreator, *payments.Verifier) {
	t.Helper()
	creator, err := payments.NewIntentCreator(payments.IntentParams{
		Provider:  stubProvider{orderID: providerOrderID},
		Stores:    []payments.Store{store},
		Currency:  "INR",
		MaxAmount: 500000,
	})
	require.NoError(t, err)

	verifier, err := payments.NewVerifier(payments.VerifierParams{
		Stores:  []payments.Store{store},
		Limiter: payments.NewMemoryLimiter(30*time.Minute, 5),
		Tx:      db.Wrap(conn),
		Secret:  "kiln_secret",
	})
	require.NoError(t, err)
	return creator, verifier
}

func TestCheckoutScenario(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	owner := uuid.New()
	order := seedOrder(t, repo, owner, "500.00")
	ctx := context.Background()
	creator, verifier := newCheckout(t, conn, store, "order_abc")

	intent, err := creator.CreateOrderIntent(ctx, payments.OrderIntentInput{
		Amount:   decimal.RequireFromString("500.00"),
		Currency: "INR",
		Receipt:  "or_" + order.ID.String(),
		ActorID:  owner,
	})
	require.NoError(t, err)
	require.Equal(t, "order_abc", intent.OrderID)
	require.Equal(t, int64(50000), intent.Amount)
	require.Equal(t, "rzp_test_kiln", intent.KeyID)

	bound, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "order_abc", *bound.RazorpayOrderID)
	require.Equal(t, enums.PaymentStatusPending, bound.PaymentStatus)

	in := payments.VerifyInput{
		Kind:              enums.PayableKindOrder,
		RecordID:          order.ID.String(),
		ProviderOrderID:   "order_abc",
		ProviderPaymentID: "pay_xyz",
		Signature:         payments.Sign("kiln_secret", "order_abc", "pay_xyz"),
		ActorID:           &owner,
	}
	_, err = verifier.Verify(ctx, in)
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, in)
	require.Equal(t, pkgerrors.CodeAlreadyPaid, pkgerrors.CodeOf(err))

	saved, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, saved.PaymentStatus)
	require.Equal(t, "order_abc", *saved.RazorpayOrderID)
}

func TestCheapIntentCannotSettleExpensiveOrder(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	store := NewStore(repo)
	owner := uuid.New()
	order := seedOrder(t, repo, owner, "10000.00")
	ctx := context.Background()
	creator, verifier := newCheckout(t, conn, store, "order_cheap")

	_, err := creator.CreateOrderIntent(ctx, payments.OrderIntentInput{
		Amount:   decimal.RequireFromString("1.00"),
		Currency: "INR",
		Receipt:  "or_" + order.ID.String(),
		ActorID:  owner,
	})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = verifier.Verify(ctx, payments.VerifyInput{
		Kind:              enums.PayableKindOrder,
		RecordID:          order.ID.String(),
		ProviderOrderID:   "order_cheap",
		ProviderPaymentID: "pay_cheap",
		Signature:         payments.Sign("kiln_secret", "order_cheap", "pay_cheap"),
		ActorID:           &owner,
	})
	require.Equal(t, pkgerrors.CodeOrderMismatch, pkgerrors.CodeOf(err))

	saved, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusUnpaid, saved.PaymentStatus)
}
