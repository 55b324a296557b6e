package validation

// CheckoutRequest is the payload for POST /orders/create/
type CheckoutRequest struct {
	Cart            string `json:"cart" validate:"required"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

// SaleItem is one line of an in-store sale.
type SaleItem struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

// SaleRequest is the payload for POST /orders/sell/
type SaleRequest struct {
	Items           []SaleItem `json:"items" validate:"required,min=1,dive"`
	Customer        string     `json:"customer,omitempty"`
	ShippingAddress string     `json:"shipping_address,omitempty" validate:"max=500"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AddCartItemRequest struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// InitiatePaymentRequest is the payload for POST /payments/initiate/{order_id}/
// Amount is a decimal string; it defaults to the order total.
type InitiatePaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card bank_transfer mobile_money"`
	PhoneNumber   string `json:"phone_number,omitempty" validate:"required_if=PaymentMethod mobile_money"`
	Provider      string `json:"provider,omitempty"`
	Amount        string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Currency      string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}
