package repository

import (
	"context"
	"time"

	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// OrderRepository persists orders together with their addresses and items.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)

	// FindLatestPendingGuestOrder returns the newest order of the guest that is
	// still PENDING in both status and payment status.
	FindLatestPendingGuestOrder(ctx context.Context, email string) (*models.Order, error)

	// Create inserts the addresses, the order and its items in one transaction.
	Create(ctx context.Context, order *models.Order) error

	// ReplaceGuestOrder overwrites an existing order, its addresses and its
	// items in one transaction.
	ReplaceGuestOrder(ctx context.Context, order *models.Order) error

	// ApplyPaymentTransition sets payment_status to `to` only when the current
	// value is one of `from`. It reports whether a row changed.
	ApplyPaymentTransition(ctx context.Context, id string, to models.PaymentStatus, from []models.PaymentStatus) (bool, error)

	SetTransactionID(ctx context.Context, id, transactionID string) error

	// UpdateStatus moves status from `from` to `to`; ErrInvalidTransition is
	// returned when the order is no longer in `from`.
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, notes string) error

	List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
}

// CatalogRepository serves the storefront read models.
type CatalogRepository interface {
	ListProducts(ctx context.Context, filter *models.ProductFilter) (*models.ProductPage, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// TokenStore holds the current payment gateway token.
// Get returns (nil, nil) when no token is stored.
type TokenStore interface {
	Get(ctx context.Context) (*models.AuthToken, error)
	Set(ctx context.Context, token *models.AuthToken) error
	Delete(ctx context.Context) error
}

// Bucket is the state of one fixed rate-limit window after a hit.
type Bucket struct {
	Count   int
	ResetAt time.Time
}

// BucketStore counts hits per key within fixed windows.
type BucketStore interface {
	// Hit records one request for key. A missing or expired bucket starts a
	// new window of length window at now with a count of 1.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Bucket, error)
}
