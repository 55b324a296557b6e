package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// OrderType tells a checkout order from an in-store sale.
type OrderType string

const (
	OrderTypeOnline  OrderType = "ONLINE"
	OrderTypeOffline OrderType = "OFFLINE"
)

// PaymentUnpaid is the payment_status of an order with no payment attempts.
const PaymentUnpaid = "UNPAID"

// ParseStatus trims and upper-cases s and accepts only the four known statuses.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusProcessing, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Order is a committed purchase. TotalAmount is fixed at creation.
type Order struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)"`
	CustomerID      string            `gorm:"type:varchar(36);index;not null"`
	Customer        accounts.Account  `gorm:"foreignKey:CustomerID"`
	SalesPersonID   *string           `gorm:"type:varchar(36)"`
	SalesPerson     *accounts.Account `gorm:"foreignKey:SalesPersonID"`
	Status          Status            `gorm:"size:16;not null;index;default:PENDING"`
	OrderType       OrderType         `gorm:"size:8;not null;default:ONLINE"`
	TotalAmount     decimal.Decimal   `gorm:"type:numeric(10,2);not null"`
	ShippingAddress string            `gorm:"type:text;not null"`
	Items           []OrderItem       `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"index"`
	UpdatedAt       time.Time
}

// OrderItem is an immutable line captured at order creation. Amount is the
// unit price at that moment, independent of later catalog changes.
type OrderItem struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)"`
	OrderID   string          `gorm:"type:varchar(36);index;not null"`
	ProductID string          `gorm:"type:varchar(36);not null"`
	Product   catalog.Product `gorm:"foreignKey:ProductID"`
	Quantity  int             `gorm:"not null;check:quantity > 0"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt time.Time
}

// DeletedOrder is the tombstone of a soft-deleted order.
type DeletedOrder struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	OrderID   string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	DeletedAt time.Time `gorm:"not null"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

func (d *DeletedOrder) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
