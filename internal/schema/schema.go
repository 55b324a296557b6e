// Package schema migrates every table the storefront owns.
package schema

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/carts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
	"github.com/RaufCode/venella-pharmacy/internal/payments"
)

// Models in dependency order: referenced tables come first.
func Models() []any {
	return []any{
		&accounts.Account{},
		&catalog.Product{},
		&carts.Cart{},
		&carts.CartItem{},
		&orders.Order{},
		&orders.OrderItem{},
		&orders.DeletedOrder{},
		&payments.Payment{},
		&notifications.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
