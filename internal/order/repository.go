package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tokopaya-be/internal/product"
)

type NewItem struct {
	ProductID int64
	Quantity  int
}

type ShippingDetails struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Phone      string
	Amount     int64
}

type Repository interface {
	CreateOrderTx(ctx context.Context, userID int64, items []NewItem, shipping ShippingDetails) (*Order, error)
	GetByID(ctx context.Context, orderID int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// CreateOrderTx creates the order, its items and the stock decrement in a
// single transaction. Any item failing (missing product, insufficient
// stock) rolls the whole thing back: no order row, no partial decrement.
func (r *repository) CreateOrderTx(ctx context.Context, userID int64, items []NewItem, shipping ShippingDetails) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var totalAmount int64
	orderItems := make([]OrderItem, 0, len(items))

	// 1. Price each item against current stock; lock the product row so a
	// concurrent order cannot oversell.
	for _, item := range items {
		var (
			name  string
			price int64
			stock int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT name, price, stock
			FROM products WHERE id = $1
			FOR UPDATE
		`, item.ProductID).Scan(&name, &price, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrProductNotFound
		}
		if err != nil {
			return nil, err
		}

		if stock < item.Quantity {
			return nil, fmt.Errorf("%w for product: %s", ErrInsufficientStock, name)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w for product: %s", ErrInsufficientStock, name)
		}

		subtotal := price * int64(item.Quantity)
		totalAmount += subtotal

		orderItems = append(orderItems, OrderItem{
			ProductID:   item.ProductID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			Subtotal:    subtotal,
		})
	}

	totalAmount += shipping.Amount

	// 2. Insert order
	o := &Order{
		UserID:             userID,
		TotalAmount:        totalAmount,
		ShippingAmount:     shipping.Amount,
		Status:             StatusPending,
		ShippingName:       shipping.Name,
		ShippingAddress:    shipping.Address,
		ShippingCity:       shipping.City,
		ShippingPostalCode: shipping.PostalCode,
		ShippingPhone:      shipping.Phone,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			user_id, total_amount, shipping_amount, status,
			shipping_name, shipping_address, shipping_city,
			shipping_postal_code, shipping_phone
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at, updated_at
	`,
		o.UserID, o.TotalAmount, o.ShippingAmount, o.Status,
		o.ShippingName, o.ShippingAddress, o.ShippingCity,
		o.ShippingPostalCode, o.ShippingPhone,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// 3. Insert order items
	for i := range orderItems {
		orderItems[i].OrderID = o.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`,
			o.ID, orderItems[i].ProductID, orderItems[i].Quantity,
			orderItems[i].UnitPrice, orderItems[i].Subtotal,
		).Scan(&orderItems[i].ID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	o.Items = orderItems
	return o, nil
}

func (r *repository) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, shipping_amount, status,
		       shipping_name, shipping_address, shipping_city,
		       shipping_postal_code, shipping_phone,
		       created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID)

	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.TotalAmount, &o.ShippingAmount, &o.Status,
		&o.ShippingName, &o.ShippingAddress, &o.ShippingCity,
		&o.ShippingPostalCode, &o.ShippingPhone,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.fetchItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, shipping_amount, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.TotalAmount, &o.ShippingAmount, &o.Status,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (r *repository) fetchItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price, oi.subtotal
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.Subtotal,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
