package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Store reads products and adjusts stock.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx binds the store to an open transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func (s *Store) Create(ctx context.Context, p *Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// GetMany loads products keyed by id; missing ids are simply absent.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	var list []Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	out := make(map[string]Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// Decrement removes qty units with a single conditional UPDATE, so concurrent
// sales can never push stock below zero. It returns the product as stored
// after the write.
func (s *Store) Decrement(ctx context.Context, id string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("decrement %s by %d: quantity must be positive", id, qty)
	}
	res := s.db.WithContext(ctx).Model(&Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return nil, fmt.Errorf("decrement stock %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientStock
	}
	return s.Get(ctx, id)
}

// LowStock lists products at or below threshold, lowest first.
func (s *Store) LowStock(ctx context.Context, threshold int) ([]Product, error) {
	var out []Product
	err := s.db.WithContext(ctx).
		Where("stock <= ?", threshold).
		Order("stock ASC").Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	return out, nil
}
