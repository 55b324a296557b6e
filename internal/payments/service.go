package payments

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/metrics"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
)

type Config struct {
	CallbackURL     string
	DefaultCurrency string
	Metrics         metrics.Recorder
}

// Service initiates and verifies payments. It also answers the order
// representation's payment_status lookup.
type Service struct {
	store    *Store
	orders   *orders.Store
	gateway  Gateway
	metrics  metrics.Recorder
	callback string
	currency string
}

func NewService(db *gorm.DB, gw Gateway, cfg Config) *Service {
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "GHS"
	}
	return &Service{
		store:    NewStore(db),
		orders:   orders.NewStore(db),
		gateway:  gw,
		metrics:  rec,
		callback: cfg.CallbackURL,
		currency: currency,
	}
}

// InitiateInput carries the payer's choices. Amount defaults to the order total
// and Currency to the configured default.
type InitiateInput struct {
	Method      string
	PhoneNumber string
	Provider    string
	Amount      *decimal.Decimal
	Currency    string
}

type Initiated struct {
	Payment          *Payment
	AuthorizationURL string
}

func (s *Service) Initiate(ctx context.Context, who accounts.Identity, orderID string, in InitiateInput) (*Initiated, error) {
	order, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, apperr.NotFound("Order not found.")
	}
	if err != nil {
		return nil, err
	}
	if order.CustomerID != who.AccountID && !who.IsStaff() {
		return nil, apperr.Forbidden("You do not have permission to pay for this order.")
	}

	fields := map[string][]string{}
	switch in.Method {
	case MethodCard, MethodBankTransfer:
	case MethodMobileMoney:
		if strings.TrimSpace(in.PhoneNumber) == "" {
			fields["phone_number"] = []string{"This field is required for mobile money."}
		}
	case "":
		fields["payment_method"] = []string{"Payment method is required."}
	default:
		fields["payment_method"] = []string{"Unsupported payment method."}
	}
	amount := order.TotalAmount
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		fields["amount"] = []string{"Amount must be greater than zero."}
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid("Invalid data.", fields)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}

	p := &Payment{
		OrderID:     order.ID,
		Amount:      amount.Round(2),
		Currency:    currency,
		Status:      StatusPending,
		Method:      in.Method,
		PhoneNumber: in.PhoneNumber,
		Provider:    in.Provider,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	req := InitializeRequest{
		Email:       order.Customer.Email,
		Amount:      p.Amount.Shift(2).IntPart(),
		Currency:    p.Currency,
		Reference:   p.ID,
		CallbackURL: s.callback,
		Metadata:    map[string]string{"payment_id": p.ID, "order_id": order.ID},
	}
	if p.Method == MethodMobileMoney {
		req.MobileMoney = &MobileMoney{Phone: p.PhoneNumber, Provider: p.Provider}
	}
	tx, err := s.gateway.Initialize(ctx, req)
	if err != nil {
		p.Status = StatusFailed
		if uerr := s.store.Update(ctx, p); uerr != nil {
			log.Printf("[payments] mark payment=%s failed: %v", p.ID, uerr)
		}
		return nil, gatewayFailure(err)
	}

	ref := tx.Reference
	if ref == "" {
		ref = p.ID
	}
	p.TransactionID = &ref
	p.AuthorizationURL = tx.AuthorizationURL
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, metrics.PaymentsInitiated, 1)
	log.Printf("[payments] initiated payment=%s order=%s amount=%s %s", p.ID, order.ID, p.Amount.StringFixed(2), p.Currency)
	return &Initiated{Payment: p, AuthorizationURL: tx.AuthorizationURL}, nil
}

// Verify settles a payment from the gateway's view of the transaction.
// A completed payment is returned unchanged.
func (s *Service) Verify(ctx context.Context, who accounts.Identity, paymentID string) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, apperr.NotFound("Payment not found.")
	}
	if err != nil {
		return nil, err
	}
	if !who.IsStaff() {
		order, err := s.orders.Get(ctx, p.OrderID)
		if err != nil && !errors.Is(err, orders.ErrOrderNotFound) {
			return nil, err
		}
		if order == nil || order.CustomerID != who.AccountID {
			return nil, apperr.Forbidden("You do not have permission to verify this payment.")
		}
	}
	if p.Status == StatusCompleted {
		return p, nil
	}
	if p.TransactionID == nil || *p.TransactionID == "" {
		return nil, apperr.BadRequest("Payment has not been initialized.")
	}

	tx, err := s.gateway.Verify(ctx, *p.TransactionID)
	if err != nil {
		return nil, gatewayFailure(err)
	}
	if tx.Status == "success" {
		p.Status = StatusCompleted
	} else {
		p.Status = StatusFailed
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, metrics.PaymentsVerified, 1)
	log.Printf("[payments] verified payment=%s status=%s", p.ID, p.Status)
	return p, nil
}

// LatestStatuses implements orders.PaymentStatuses.
func (s *Service) LatestStatuses(ctx context.Context, orderIDs []string) (map[string]string, error) {
	return s.store.LatestStatuses(ctx, orderIDs)
}

func gatewayFailure(err error) error {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return apperr.Upstream(gerr.Message, err)
	}
	log.Printf("[payments] gateway unreachable: %v", err)
	return apperr.Internal("Payment gateway is unreachable.", err)
}
