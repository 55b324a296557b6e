package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Type classifies a notification.
type Type string

const (
	TypeNewOrder          Type = "NEW_ORDER"
	TypeOrderStatusUpdate Type = "ORDER_STATUS_UPDATE"
	TypeProductStockAlert Type = "PRODUCT_STOCK_ALERT"
	TypeNewMessage        Type = "NEW_MESSAGE"
	TypeSystemAlert       Type = "SYSTEM_ALERT"
	TypePromotion         Type = "PROMOTION"
	TypeOther             Type = "OTHER"
)

// StaffFeedTypes are the notification types shown on the sales-person feed.
var StaffFeedTypes = []Type{TypeNewOrder, TypeProductStockAlert, TypeSystemAlert}

// Audience is who a notification is addressed to.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceStaff    Audience = "staff"
)

// Notification is a single event surfaced to a customer or to staff.
// Staff notifications have no CustomerID.
type Notification struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Audience   Audience  `gorm:"size:16;not null;index" json:"audience"`
	CustomerID *string   `gorm:"type:varchar(36);index" json:"customer_id"`
	Type       Type      `gorm:"size:32;not null" json:"notification_type"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// ForCustomer builds a customer notification. ID and timestamp are fixed here so
// every sink sees the same identity for the event.
func ForCustomer(customerID string, t Type, content string) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Audience:   AudienceCustomer,
		CustomerID: &customerID,
		Type:       t,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// ForStaff builds a staff notification.
func ForStaff(t Type, content string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Audience:  AudienceStaff,
		Type:      t,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
