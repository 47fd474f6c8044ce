package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// Ensure PostgresOrderRepository implements OrderRepository
var _ OrderRepository = (*PostgresOrderRepository)(nil)

const orderSelect = `
	SELECT o.id, o.order_number, COALESCE(o.user_id, ''), COALESCE(o.guest_email, ''),
	       COALESCE(o.guest_name, ''), COALESCE(o.guest_phone, ''), o.status, o.payment_status,
	       o.total_amount, o.currency, COALESCE(o.transaction_id, ''), COALESCE(o.notes, ''),
	       o.created_at, o.updated_at,
	       s.id, s.full_name, s.phone, s.address_line, s.city, s.district, s.postal_code, s.country,
	       b.id, b.full_name, b.phone, b.address_line, b.city, b.district, b.postal_code, b.country
	FROM orders o
	JOIN addresses s ON s.id = o.shipping_address_id
	JOIN addresses b ON b.id = o.billing_address_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
	now    func() time.Time
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GetByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.logger.Debug("Fetching order by ID", logging.Fields{"order_id": id})
	return r.getOne(ctx, orderSelect+" WHERE o.id = $1", id)
}

// GetByNumber retrieves an order by its human readable number.
func (r *PostgresOrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	r.logger.Debug("Fetching order by number", logging.Fields{"order_number": orderNumber})
	return r.getOne(ctx, orderSelect+" WHERE o.order_number = $1", orderNumber)
}

// FindLatestPendingGuestOrder returns the newest unpaid pending order of a guest.
func (r *PostgresOrderRepository) FindLatestPendingGuestOrder(ctx context.Context, email string) (*models.Order, error) {
	query := orderSelect + `
		WHERE o.guest_email = $1 AND o.status = $2 AND o.payment_status = $3
		ORDER BY o.created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, email, models.OrderStatusPending, models.PaymentStatusPending)
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{
			"args":  args,
			"error": err.Error(),
		})
		return nil, err
	}

	items, err := loadItems(ctx, r.db, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// Create inserts a new order with its addresses and items.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	now := r.now()
	if order.ID == "" {
		order.ID = generateOrderID()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber(now)
	}
	if order.ShippingAddress.ID == "" {
		order.ShippingAddress.ID = uuid.NewString()
	}
	if order.BillingAddress.ID == "" || order.BillingAddress.ID == order.ShippingAddress.ID {
		order.BillingAddress.ID = uuid.NewString()
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	r.logger.Debug("Creating new order", logging.Fields{
		"order_id":    order.ID,
		"guest_email": order.GuestEmail,
	})

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, addr := range []*models.Address{&order.ShippingAddress, &order.BillingAddress} {
		if err := insertAddress(ctx, tx, addr, now); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO orders (
			id, order_number, user_id, guest_email, guest_name, guest_phone,
			status, payment_status, total_amount, currency, notes,
			shipping_address_id, billing_address_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`
	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		nullString(order.UserID),
		nullString(order.GuestEmail),
		nullString(order.GuestName),
		nullString(order.GuestPhone),
		order.Status,
		order.PaymentStatus,
		order.TotalAmount,
		order.Currency,
		nullString(order.Notes),
		order.ShippingAddress.ID,
		order.BillingAddress.ID,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return err
	}

	if err := insertItems(ctx, tx, order); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Order created successfully", logging.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.String(),
	})
	return nil
}

// ReplaceGuestOrder overwrites a pending guest order in place.
func (r *PostgresOrderRepository) ReplaceGuestOrder(ctx context.Context, order *models.Order) error {
	now := r.now()
	order.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE orders
		SET guest_name = $2, guest_phone = $3, total_amount = $4, currency = $5,
		    notes = $6, updated_at = $7
		WHERE id = $1 AND status = $8 AND payment_status = $9
	`
	result, err := tx.ExecContext(ctx, query,
		order.ID,
		nullString(order.GuestName),
		nullString(order.GuestPhone),
		order.TotalAmount,
		order.Currency,
		nullString(order.Notes),
		now,
		models.OrderStatusPending,
		models.PaymentStatusPending,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Paid or advanced since it was looked up.
		return errors.ErrInvalidTransition
	}

	for _, addr := range []*models.Address{&order.ShippingAddress, &order.BillingAddress} {
		if err := updateAddress(ctx, tx, addr); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, order); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Guest order replaced", logging.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
		"total":    order.TotalAmount.String(),
	})
	return nil
}

// ApplyPaymentTransition is a compare-and-set on payment_status. A move to PAID
// also confirms a still pending order.
func (r *PostgresOrderRepository) ApplyPaymentTransition(ctx context.Context, id string, to models.PaymentStatus, from []models.PaymentStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE orders
		SET payment_status = $2,
		    status = CASE WHEN $2 = 'PAID' AND status = 'PENDING' THEN 'CONFIRMED' ELSE status END,
		    updated_at = $3
		WHERE id = $1 AND payment_status = ANY($4)
	`
	result, err := r.db.ExecContext(ctx, query, id, string(to), r.now(), pq.Array(allowed))
	if err != nil {
		r.logger.Error("Failed to apply payment transition", logging.Fields{
			"order_id": id,
			"to":       to,
			"error":    err.Error(),
		})
		return false, err
	}

	rows, _ := result.RowsAffected()
	r.logger.Info("Payment transition evaluated", logging.Fields{
		"order_id": id,
		"to":       to,
		"applied":  rows > 0,
	})
	return rows > 0, nil
}

// SetTransactionID associates a gateway transaction with an order.
func (r *PostgresOrderRepository) SetTransactionID(ctx context.Context, id, transactionID string) error {
	query := `
		UPDATE orders
		SET transaction_id = $2, updated_at = $3
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, transactionID, r.now())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrNotFound
	}

	r.logger.Info("Transaction ID set", logging.Fields{
		"order_id":       id,
		"transaction_id": transactionID,
	})
	return nil
}

// UpdateStatus updates the fulfilment status of an order.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, notes string) error {
	query := `
		UPDATE orders
		SET status = $3, notes = COALESCE(NULLIF($4, ''), notes), updated_at = $5
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, from, to, notes, r.now())
	if err != nil {
		r.logger.Error("Failed to update order status", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrInvalidTransition
	}

	r.logger.Info("Order status updated", logging.Fields{
		"order_id":   id,
		"old_status": from,
		"new_status": to,
	})
	return nil
}

// List retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	where, args := buildOrderFilter(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM orders o" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	selectQuery := orderSelect + where +
		" ORDER BY o.created_at DESC LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}

	r.logger.Info("Orders listed", logging.Fields{
		"count": len(orders),
		"total": total,
	})
	return orders, total, nil
}

func buildOrderFilter(filter *models.OrderListFilter) (string, []interface{}) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, "o.status = $"+strconv.Itoa(len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		conds = append(conds, "o.payment_status = $"+strconv.Itoa(len(args)))
	}
	if filter.GuestEmail != "" {
		args = append(args, filter.GuestEmail)
		conds = append(conds, "o.guest_email = $"+strconv.Itoa(len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	s, b := &o.ShippingAddress, &o.BillingAddress
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.GuestEmail,
		&o.GuestName, &o.GuestPhone, &o.Status, &o.PaymentStatus,
		&o.TotalAmount, &o.Currency, &o.TransactionID, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
		&s.ID, &s.FullName, &s.Phone, &s.AddressLine, &s.City, &s.District, &s.PostalCode, &s.Country,
		&b.ID, &b.FullName, &b.Phone, &b.AddressLine, &b.City, &b.District, &b.PostalCode, &b.Country,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Line items keep the order they were submitted in through position.
const (
	selectItemsQuery = `
		SELECT id, order_id, product_id, product_name, quantity, price, volume
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	insertItemQuery = `
		INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
)

func loadItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]models.OrderItem, error) {
	out := make(map[string][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, selectItemsQuery, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Volume); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func insertAddress(ctx context.Context, tx *sql.Tx, a *models.Address, now time.Time) error {
	query := `
		INSERT INTO addresses (id, full_name, phone, address_line, city, district, postal_code, country, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query, a.ID, a.FullName, a.Phone, a.AddressLine, a.City, a.District, a.PostalCode, a.Country, now)
	return err
}

func updateAddress(ctx context.Context, tx *sql.Tx, a *models.Address) error {
	query := `
		UPDATE addresses
		SET full_name = $2, phone = $3, address_line = $4, city = $5,
		    district = $6, postal_code = $7, country = $8
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, a.ID, a.FullName, a.Phone, a.AddressLine, a.City, a.District, a.PostalCode, a.Country)
	return err
}

func insertItems(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	stmt, err := tx.PrepareContext(ctx, insertItemQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range order.Items {
		it := &order.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = order.ID
		if _, err := stmt.ExecContext(ctx, it.ID, it.OrderID, i, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Volume); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func generateOrderID() string {
	return uuid.NewString()
}

// generateOrderNumber renders ORD-<yyyymmdd>-<6 upper-case chars>.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}
