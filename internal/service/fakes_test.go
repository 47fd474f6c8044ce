package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

// fakeOrderRepo is an in-memory OrderRepository with the same
// compare-and-set semantics as the postgres implementation.
type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	seq     int
	creates int
	// replaceErr, when set, is returned by ReplaceGuestOrder once.
	replaceErr error
}

var _ repository.OrderRepository = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func (r *fakeOrderRepo) put(o *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
}

func (r *fakeOrderRepo) get(id string) *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		return cloneOrder(o)
	}
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if o := r.get(id); o != nil {
		return o, nil
	}
	return nil, errors.ErrNotFound
}

func (r *fakeOrderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *fakeOrderRepo) FindLatestPendingGuestOrder(ctx context.Context, email string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*models.Order
	for _, o := range r.orders {
		if o.GuestEmail == email && o.Status == models.OrderStatusPending && o.PaymentStatus == models.PaymentStatusPending {
			found = append(found, o)
		}
	}
	if len(found) == 0 {
		return nil, errors.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return cloneOrder(found[0]), nil
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.creates++
	order.ID = "order-" + string(rune('a'+r.seq-1))
	order.OrderNumber = "ORD-20260101-00000" + string(rune('0'+r.seq))
	order.ShippingAddress.ID = order.ID + "-ship"
	order.BillingAddress.ID = order.ID + "-bill"
	order.CreatedAt = time.Date(2026, 1, 1, 0, r.seq, 0, 0, time.UTC)
	order.UpdatedAt = order.CreatedAt
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) ReplaceGuestOrder(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.replaceErr; err != nil {
		r.replaceErr = nil
		return err
	}
	cur, ok := r.orders[order.ID]
	if !ok || cur.Status != models.OrderStatusPending || cur.PaymentStatus != models.PaymentStatusPending {
		return errors.ErrInvalidTransition
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeOrderRepo) ApplyPaymentTransition(ctx context.Context, id string, to models.PaymentStatus, from []models.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, errors.ErrNotFound
	}
	for _, s := range from {
		if o.PaymentStatus == s {
			o.PaymentStatus = to
			if to == models.PaymentStatusPaid && o.Status == models.OrderStatusPending {
				o.Status = models.OrderStatusConfirmed
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrderRepo) SetTransactionID(ctx context.Context, id, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return errors.ErrNotFound
	}
	o.TransactionID = transactionID
	return nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return errors.ErrNotFound
	}
	if o.Status != from {
		return errors.ErrInvalidTransition
	}
	o.Status = to
	if notes != "" {
		o.Notes = notes
	}
	return nil
}

func (r *fakeOrderRepo) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, len(out), nil
}

// fakeGateway scripts gateway responses and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	logins    int32
	refreshes int32
	sessions  int32
	statuses  int32

	loginErr   error
	refreshErr error
	loginDelay time.Duration
	tokenTTL   time.Duration

	// sessionErrs are returned by successive CreateSession calls.
	sessionErrs []error
	lastSession *models.PaymentRequest
	lastToken   string

	orderStatus string
	txStatus    string
	statusErr   error
}

func (g *fakeGateway) Login(ctx context.Context) (*models.AuthToken, error) {
	n := atomic.AddInt32(&g.logins, 1)
	if g.loginDelay > 0 {
		select {
		case <-time.After(g.loginDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return g.token("login", n), nil
}

func (g *fakeGateway) Refresh(ctx context.Context, refreshToken string) (*models.AuthToken, error) {
	n := atomic.AddInt32(&g.refreshes, 1)
	if g.refreshErr != nil {
		return nil, g.refreshErr
	}
	return g.token("refresh", n), nil
}

func (g *fakeGateway) token(kind string, n int32) *models.AuthToken {
	ttl := g.tokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &models.AuthToken{
		Value:        kind + "-token-" + string(rune('0'+n)),
		RefreshToken: "refresh-" + kind,
		ExpiresAt:    time.Now().Add(ttl),
	}
}

func (g *fakeGateway) CreateSession(ctx context.Context, token string, req *models.PaymentRequest) (*clients.SessionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := atomic.AddInt32(&g.sessions, 1)
	g.lastSession = req
	g.lastToken = token
	if int(n) <= len(g.sessionErrs) && g.sessionErrs[n-1] != nil {
		return nil, g.sessionErrs[n-1]
	}
	return &clients.SessionResult{
		RedirectURL:   "https://gateway.test/pay/" + req.OrderID,
		TransactionID: "tx-" + req.OrderID,
	}, nil
}

func (g *fakeGateway) OrderStatus(ctx context.Context, token, orderID string) (*clients.StatusResult, error) {
	atomic.AddInt32(&g.statuses, 1)
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &clients.StatusResult{Status: g.orderStatus}, nil
}

func (g *fakeGateway) TransactionStatus(ctx context.Context, token, transactionID string) (*clients.StatusResult, error) {
	atomic.AddInt32(&g.statuses, 1)
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &clients.StatusResult{Status: g.txStatus, TransactionID: transactionID}, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, order.ID)
	return m.err
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordedEvent struct {
	kind    string
	orderID string
	source  string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) record(e recordedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	p.record(recordedEvent{kind: "created", orderID: order.ID})
	return nil
}

func (p *fakePublisher) PublishPaymentUpdated(ctx context.Context, order *models.Order, previous models.PaymentStatus, source string) error {
	p.record(recordedEvent{kind: "payment", orderID: order.ID, source: source})
	return nil
}

func (p *fakePublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	p.record(recordedEvent{kind: "status", orderID: order.ID})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.kind
	}
	return out
}

type fakeOrderCache struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	hits    int
	deletes int
}

func newFakeOrderCache() *fakeOrderCache {
	return &fakeOrderCache{orders: make(map[string]*models.Order)}
}

func (c *fakeOrderCache) Get(_ context.Context, id string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, nil
	}
	c.hits++
	cp := *o
	return &cp, nil
}

func (c *fakeOrderCache) Set(_ context.Context, order *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *order
	c.orders[order.ID] = &cp
	return nil
}

func (c *fakeOrderCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
	c.deletes++
	return nil
}
