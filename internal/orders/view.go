package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
)

// View is the order representation returned to clients.
type View struct {
	ID              string            `json:"id"`
	Customer        accounts.Account  `json:"customer"`
	SalesPerson     *accounts.Account `json:"sales_person"`
	CreatedAt       time.Time         `json:"created_at"`
	Status          Status            `json:"status"`
	OrderType       OrderType         `json:"order_type"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	ShippingAddress string            `json:"shipping_address"`
	OrderItems      []ItemView        `json:"order_items"`
	PaymentStatus   string            `json:"payment_status"`
}

type ItemView struct {
	Product   catalog.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

func newView(o Order, paymentStatus string) View {
	items := make([]ItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemView{
			Product:   it.Product,
			Quantity:  it.Quantity,
			Amount:    it.Amount,
			CreatedAt: it.CreatedAt,
		})
	}
	if paymentStatus == "" {
		paymentStatus = PaymentUnpaid
	}
	return View{
		ID:              o.ID,
		Customer:        o.Customer,
		SalesPerson:     o.SalesPerson,
		CreatedAt:       o.CreatedAt,
		Status:          o.Status,
		OrderType:       o.OrderType,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		OrderItems:      items,
		PaymentStatus:   paymentStatus,
	}
}
