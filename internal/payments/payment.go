// Package payments records payment attempts for orders and settles them
// against the Paystack gateway.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/orders"
)

// Payment statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Payment methods
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Payment is one attempt to collect funds for an order. An order may have many.
type Payment struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID          string          `gorm:"type:varchar(36);index;not null" json:"order"`
	Order            orders.Order    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	Amount           decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency         string          `gorm:"size:3;not null;default:GHS" json:"currency"`
	Status           string          `gorm:"size:20;not null;default:pending;index" json:"status"`
	Method           string          `gorm:"size:20;not null" json:"payment_method"`
	PhoneNumber      string          `gorm:"size:20" json:"phone_number,omitempty"`
	Provider         string          `gorm:"size:32" json:"provider,omitempty"`
	TransactionID    *string         `gorm:"size:100;uniqueIndex" json:"transaction_id"`
	AuthorizationURL string          `gorm:"type:text" json:"authorization_url,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return nil
}

// Store persists payments.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, p *Payment) error {
	if err := s.db.WithContext(ctx).Omit("Order").Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return &p, nil
}

// Update writes the mutable gateway fields of p.
func (s *Store) Update(ctx context.Context, p *Payment) error {
	err := s.db.WithContext(ctx).Model(p).Select("Status", "TransactionID", "AuthorizationURL", "UpdatedAt").Updates(p).Error
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	return nil
}

// LatestStatuses returns the status of the most recent payment per order.
func (s *Store) LatestStatuses(ctx context.Context, orderIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var rows []Payment
	err := s.db.WithContext(ctx).
		Select("id", "order_id", "status", "created_at", "updated_at").
		Where("order_id IN ?", orderIDs).
		Order("created_at ASC").Order("updated_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest payment statuses: %w", err)
	}
	for _, p := range rows {
		out[p.OrderID] = p.Status
	}
	return out, nil
}
