package payments

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/razorpay"
)

type fakeStore struct {
	mu         sync.Mutex
	kind       enums.PayableKind
	userScoped bool
	records    map[uuid.UUID]*Payable
	loads      int
	markCalls  int
	bound      map[uuid.UUID]string
	stateErr   error
	// loadGate blocks the next gatedLoads calls to Load until all of them
	// arrive, to line up concurrent callers
	loadGate   *sync.WaitGroup
	gatedLoads int
	// beforeMark runs under the lock just before MarkPaid compares the row
	beforeMark func(rec *Payable)
}

func newFakeStore(kind enums.PayableKind, userScoped bool) *fakeStore {
	return &fakeStore{
		kind:       kind,
		userScoped: userScoped,
		records:    map[uuid.UUID]*Payable{},
		bound:      map[uuid.UUID]string{},
	}
}

func (s *fakeStore) Kind() enums.PayableKind { return s.kind }
func (s *fakeStore) RecordField() string     { return "order_id" }
func (s *fakeStore) UserScoped() bool        { return s.userScoped }

func (s *fakeStore) ConfirmationKind() enums.NotificationKind {
	return enums.NotificationKindOrderConfirmed
}

func (s *fakeStore) put(p *Payable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Kind = s.kind
	s.records[p.ID] = p
}

func (s *fakeStore) get(id uuid.UUID) Payable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *fakeStore) Load(ctx context.Context, id uuid.UUID) (*Payable, error) {
	s.mu.Lock()
	s.loads++
	rec, ok := s.records[id]
	var copied Payable
	if ok {
		copied = *rec
	}
	var gate *sync.WaitGroup
	if s.gatedLoads > 0 {
		s.gatedLoads--
		gate = s.loadGate
	}
	s.mu.Unlock()

	if gate != nil {
		gate.Done()
		gate.Wait()
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
	}
	return &copied, nil
}

func (s *fakeStore) CheckPayable(p *Payable) error { return s.stateErr }

func (s *fakeStore) BindProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.PaymentStatus == enums.PaymentStatusPaid || !rec.Amount.Equal(amount) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "record changed while opening payment")
	}
	s.bound[id] = providerOrderID
	rec.ProviderOrderID = &providerOrderID
	return nil
}

func (s *fakeStore) MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, ref ProviderRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	if s.beforeMark != nil {
		s.beforeMark(rec)
	}
	if rec.PaymentStatus == enums.PaymentStatusPaid || s.stateErr != nil {
		return false, nil
	}
	if rec.ProviderOrderID == nil || *rec.ProviderOrderID != ref.OrderID {
		return false, nil
	}
	rec.PaymentStatus = enums.PaymentStatusPaid
	rec.PaymentCompleted = true
	return true, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []Notification
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, tx *gorm.DB, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, note)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fakeProvider struct {
	keyID    string
	orderID  string
	err      error
	requests []razorpay.OrderRequest
}

func (p *fakeProvider) CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &razorpay.Order{ID: p.orderID, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (p *fakeProvider) KeyID() string { return p.keyID }
