package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusMismatch means the order's status changed between read and write.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Filter narrows List. Deleted orders are excluded unless IncludeDeleted is set.
type Filter struct {
	CustomerID     string
	Statuses       []Status
	IncludeDeleted bool
}

// Store encapsulates persistence of orders, their items and tombstones.
type Store struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// WithTx binds the store to an open transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, nowFunc: s.nowFunc}
}

// Create writes the order header and then its items, which reference it.
func (s *Store) Create(ctx context.Context, o *Order, items []OrderItem) error {
	db := s.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(o).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	for i := range items {
		items[i].OrderID = o.ID
	}
	if len(items) > 0 {
		if err := db.Omit(clause.Associations).Create(&items).Error; err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
	}
	o.Items = items
	return nil
}

// Get fetches an order with customer, sales person and items.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := s.preloaded(ctx).First(&o, "orders.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &o, nil
}

// List returns orders newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Order, error) {
	q := s.preloaded(ctx)
	if f.CustomerID != "" {
		q = q.Where("orders.customer_id = ?", f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("orders.status IN ?", f.Statuses)
	}
	if !f.IncludeDeleted {
		q = q.Where("NOT EXISTS (SELECT 1 FROM deleted_orders d WHERE d.order_id = orders.id)")
	}
	var out []Order
	if err := q.Order("orders.created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// UpdateStatus moves an order from expected to next in one conditional write.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next Status) error {
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{"status": next, "updated_at": s.nowFunc()})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusMismatch
	}
	return nil
}

// IsDeleted reports whether a tombstone exists for the order.
func (s *Store) IsDeleted(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&DeletedOrder{}).Where("order_id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check deleted order: %w", err)
	}
	return n > 0, nil
}

// MarkDeleted writes the tombstone. It returns false when one already exists;
// the unique index on order_id keeps it to one even under concurrent deletes.
func (s *Store) MarkDeleted(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&DeletedOrder{OrderID: id, DeletedAt: s.nowFunc()})
	if res.Error != nil {
		return false, fmt.Errorf("mark order deleted: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Customer").
		Preload("SalesPerson").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Product")
}
