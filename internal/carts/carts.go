// Package carts holds each customer's pending selections before checkout.
package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
)

// Cart is unique per customer and owns its items.
type Cart struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CustomerID string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"customer"`
	Items      []CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem is one product line. Quantity is always positive.
type CartItem struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID    string          `gorm:"type:varchar(36);index;not null" json:"cart"`
	ProductID string          `gorm:"type:varchar(36);not null" json:"-"`
	Product   catalog.Product `gorm:"foreignKey:ProductID" json:"product"`
	Quantity  int             `gorm:"not null;default:1;check:quantity > 0" json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (i *CartItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

var ErrCartNotFound = errors.New("cart not found")

// Store reads and edits carts.
type Store struct {
	db       *gorm.DB
	products *catalog.Store
}

func NewStore(db *gorm.DB, products *catalog.Store) *Store {
	return &Store{db: db, products: products}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, products: s.products.WithTx(tx)}
}

// Get loads a cart with its items and their current products.
func (s *Store) Get(ctx context.Context, id string) (*Cart, error) {
	var c Cart
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Product").
		First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", id, err)
	}
	return &c, nil
}

// ForCustomer returns the customer's cart, creating an empty one on first use.
func (s *Store) ForCustomer(ctx context.Context, customerID string) (*Cart, error) {
	var c Cart
	err := s.db.WithContext(ctx).
		Where(Cart{CustomerID: customerID}).
		FirstOrCreate(&c).Error
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return s.Get(ctx, c.ID)
}

// AddItem puts qty units of a product in the caller's cart, merging with an
// existing line for the same product.
func (s *Store) AddItem(ctx context.Context, who accounts.Identity, productID string, qty int) (*CartItem, error) {
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, apperr.NotFound("Product not found.")
		}
		return nil, err
	}
	cart, err := s.ForCustomer(ctx, who.AccountID)
	if err != nil {
		return nil, err
	}

	var item CartItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = CartItem{CartID: cart.ID, ProductID: productID, Quantity: qty}
			return tx.Create(&item).Error
		case err != nil:
			return err
		}
		item.Quantity += qty
		return tx.Model(&item).Update("quantity", item.Quantity).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	return s.item(ctx, item.ID)
}

// UpdateItem sets the quantity of a line in the caller's cart.
func (s *Store) UpdateItem(ctx context.Context, who accounts.Identity, itemID string, qty int) (*CartItem, error) {
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}
	item, err := s.ownedItem(ctx, who, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(item).Update("quantity", qty).Error; err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return s.item(ctx, item.ID)
}

// RemoveItem deletes a line from the caller's cart.
func (s *Store) RemoveItem(ctx context.Context, who accounts.Identity, itemID string) error {
	item, err := s.ownedItem(ctx, who, itemID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// Clear deletes every item of a cart.
func (s *Store) Clear(ctx context.Context, cartID string) error {
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart %s: %w", cartID, err)
	}
	return nil
}

func (s *Store) item(ctx context.Context, id string) (*CartItem, error) {
	var item CartItem
	if err := s.db.WithContext(ctx).Preload("Product").First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get cart item %s: %w", id, err)
	}
	return &item, nil
}

func (s *Store) ownedItem(ctx context.Context, who accounts.Identity, itemID string) (*CartItem, error) {
	var item CartItem
	err := s.db.WithContext(ctx).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.customer_id = ?", itemID, who.AccountID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Cart item not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item %s: %w", itemID, err)
	}
	return &item, nil
}

func checkQuantity(qty int) error {
	if qty <= 0 {
		return apperr.Invalid("Invalid data.", map[string][]string{
			"quantity": {"Quantity must be greater than zero."},
		})
	}
	return nil
}
