package orders

import (
	"fmt"

	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

func placedNotifications(o *Order) []notifications.Notification {
	return []notifications.Notification{
		notifications.ForCustomer(o.CustomerID, notifications.TypeNewOrder, fmt.Sprintf(
			"Your order #%s has been placed successfully and waiting to be processed. Thank you for shopping with us!", o.ID)),
		notifications.ForStaff(notifications.TypeNewOrder, fmt.Sprintf(
			"A new order #%s has been placed by %s.", o.ID, o.Customer.Email)),
	}
}

// statusNotifications returns the staff and customer notices for a status
// change; PENDING has none.
func statusNotifications(o *Order, st Status) []notifications.Notification {
	var staff, customer string
	switch st {
	case StatusProcessing:
		staff = fmt.Sprintf("Order #%s is now being processed.", o.ID)
		customer = fmt.Sprintf("Your order #%s is now being processed.", o.ID)
	case StatusDelivered:
		staff = fmt.Sprintf("Order #%s has been delivered.", o.ID)
		customer = fmt.Sprintf("Your order #%s has been delivered. Thank you for shopping with us!", o.ID)
	case StatusCancelled:
		staff = fmt.Sprintf("Order #%s has been cancelled.", o.ID)
		customer = fmt.Sprintf("Your order #%s has been cancelled. We apologize for the inconvenience.", o.ID)
	default:
		return nil
	}
	return []notifications.Notification{
		notifications.ForStaff(notifications.TypeOrderStatusUpdate, staff),
		notifications.ForCustomer(o.CustomerID, notifications.TypeOrderStatusUpdate, customer),
	}
}
