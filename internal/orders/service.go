// Package orders converts carts into orders, records in-store sales and drives
// the order status lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/carts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/metrics"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

// DefaultSaleAddress is the shipping address of an in-store sale when none is given.
const DefaultSaleAddress = "In-store sale"

// PaymentStatuses resolves the status of the most recent payment per order.
// Orders without payments are absent from the result.
type PaymentStatuses interface {
	LatestStatuses(ctx context.Context, orderIDs []string) (map[string]string, error)
}

// Config wires the collaborators of a Service. Nil fields fall back to no-ops.
type Config struct {
	Sink              notifications.Sink
	Payments          PaymentStatuses
	Metrics           metrics.Recorder
	LowStockThreshold int
}

// Service is the checkout orchestrator. Every call takes the caller's identity.
type Service struct {
	db       *gorm.DB
	orders   *Store
	carts    *carts.Store
	products *catalog.Store
	accounts *accounts.Store
	watcher  *catalog.Watcher
	sink     notifications.Sink
	payments PaymentStatuses
	metrics  metrics.Recorder
}

func NewService(db *gorm.DB, cfg Config) *Service {
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	products := catalog.NewStore(db)
	return &Service{
		db:       db,
		orders:   NewStore(db),
		carts:    carts.NewStore(db, products),
		products: products,
		accounts: accounts.NewStore(db),
		watcher:  catalog.NewWatcher(cfg.Sink, rec, cfg.LowStockThreshold),
		sink:     cfg.Sink,
		payments: cfg.Payments,
		metrics:  rec,
	}
}

// CheckoutInput is a request to turn a cart into an order.
type CheckoutInput struct {
	CartID          string
	ShippingAddress string
}

// SaleLine is one product of an in-store sale.
type SaleLine struct {
	ProductID string
	Quantity  int
}

// SaleInput is an in-store sale entered by staff. CustomerID defaults to the
// staff member and ShippingAddress to DefaultSaleAddress.
type SaleInput struct {
	Items           []SaleLine
	CustomerID      string
	ShippingAddress string
}

// line is a product and quantity about to become an order item.
type line struct {
	product  catalog.Product
	quantity int
}

type placement struct {
	customerID    string
	salesPersonID *string
	status        Status
	orderType     OrderType
	address       string
	lines         []line
}

// Checkout converts the caller's cart into a PENDING online order. The order,
// its items, the stock decrements and the cart clear commit together or not at all.
func (s *Service) Checkout(ctx context.Context, who accounts.Identity, in CheckoutInput) (*View, error) {
	address := strings.TrimSpace(in.ShippingAddress)
	fields := map[string][]string{}
	if strings.TrimSpace(in.CartID) == "" {
		fields["cart"] = []string{"This field is required."}
	}
	if address == "" {
		fields["shipping_address"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid("Invalid data.", fields)
	}

	var (
		order   *Order
		touched []catalog.Product
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cartStore := s.carts.WithTx(tx)
		cart, err := cartStore.Get(ctx, in.CartID)
		if errors.Is(err, carts.ErrCartNotFound) {
			return apperr.NotFound("Cart not found.")
		}
		if err != nil {
			return err
		}
		if cart.CustomerID != who.AccountID {
			return apperr.Forbidden("Cart does not belong to the authenticated user.")
		}
		if len(cart.Items) == 0 {
			return apperr.BadRequest("Cart is empty.")
		}

		lines := make([]line, 0, len(cart.Items))
		for _, it := range cart.Items {
			if it.Product.ID == "" {
				return apperr.NotFound("Product not found.")
			}
			lines = append(lines, line{product: it.Product, quantity: it.Quantity})
		}

		order, touched, err = s.place(ctx, tx, placement{
			customerID: who.AccountID,
			status:     StatusPending,
			orderType:  OrderTypeOnline,
			address:    address,
			lines:      lines,
		})
		if err != nil {
			return err
		}
		return cartStore.Clear(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.afterStockWrite(ctx, touched)
	s.metrics.Count(ctx, metrics.OrdersPlaced, 1)

	order.Customer = accounts.Account{ID: who.AccountID, Email: who.Email}
	view, stored := s.settled(ctx, order)
	for _, n := range placedNotifications(stored) {
		notifications.Send(ctx, s.sink, n)
	}
	log.Printf("[orders] placed order=%s customer=%s total=%s", stored.ID, stored.CustomerID, stored.TotalAmount.StringFixed(2))
	return view, nil
}

// RecordOfflineSale books an in-store sale as a DELIVERED offline order.
func (s *Service) RecordOfflineSale(ctx context.Context, who accounts.Identity, in SaleInput) (*View, error) {
	if !who.IsStaff() {
		return nil, errNotStaff
	}
	if len(in.Items) == 0 {
		return nil, apperr.Invalid("Invalid data.", map[string][]string{
			"items": {"At least one item is required."},
		})
	}
	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, apperr.Invalid("Invalid data.", map[string][]string{
				"quantity": {"Quantity must be greater than zero."},
			})
		}
		ids = append(ids, it.ProductID)
	}
	customerID := in.CustomerID
	if customerID == "" {
		customerID = who.AccountID
	}
	address := strings.TrimSpace(in.ShippingAddress)
	if address == "" {
		address = DefaultSaleAddress
	}

	var (
		order   *Order
		touched []catalog.Product
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.CustomerID != "" {
			if _, err := s.accounts.WithTx(tx).Get(ctx, in.CustomerID); err != nil {
				return err
			}
		}
		products, err := s.products.WithTx(tx).GetMany(ctx, ids)
		if err != nil {
			return err
		}
		lines := make([]line, 0, len(in.Items))
		for _, it := range in.Items {
			p, ok := products[it.ProductID]
			if !ok {
				return apperr.NotFound(fmt.Sprintf("Product %s not found.", it.ProductID))
			}
			lines = append(lines, line{product: p, quantity: it.Quantity})
		}
		salesPerson := who.AccountID
		order, touched, err = s.place(ctx, tx, placement{
			customerID:    customerID,
			salesPersonID: &salesPerson,
			status:        StatusDelivered,
			orderType:     OrderTypeOffline,
			address:       address,
			lines:         lines,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterStockWrite(ctx, touched)
	s.metrics.Count(ctx, metrics.OfflineSales, 1)

	view, _ := s.settled(ctx, order)
	log.Printf("[orders] offline sale order=%s staff=%s total=%s", order.ID, who.AccountID, order.TotalAmount.StringFixed(2))
	return view, nil
}

// place validates lines against current prices and stock, writes the order
// header and items, then decrements stock conditionally. It must run inside tx.
func (s *Service) place(ctx context.Context, tx *gorm.DB, p placement) (*Order, []catalog.Product, error) {
	total := decimal.Zero
	items := make([]OrderItem, 0, len(p.lines))
	for _, l := range p.lines {
		if l.quantity <= 0 {
			return nil, nil, apperr.BadRequest(fmt.Sprintf("Quantity for %s must be greater than zero.", l.product.Name))
		}
		if !l.product.Price.IsPositive() {
			return nil, nil, apperr.BadRequest(fmt.Sprintf("Product %s does not have a valid price.", l.product.Name))
		}
		if l.quantity > l.product.Stock {
			return nil, nil, insufficientStock(l.product, l.quantity)
		}
		total = total.Add(l.product.Price.Mul(decimal.NewFromInt(int64(l.quantity))))
		items = append(items, OrderItem{
			ProductID: l.product.ID,
			Product:   l.product,
			Quantity:  l.quantity,
			Amount:    l.product.Price,
		})
	}

	order := &Order{
		CustomerID:      p.customerID,
		SalesPersonID:   p.salesPersonID,
		Status:          p.status,
		OrderType:       p.orderType,
		TotalAmount:     total,
		ShippingAddress: p.address,
	}
	if err := s.orders.WithTx(tx).Create(ctx, order, items); err != nil {
		return nil, nil, err
	}

	products := s.products.WithTx(tx)
	touched := make([]catalog.Product, 0, len(p.lines))
	for _, l := range p.lines {
		after, err := products.Decrement(ctx, l.product.ID, l.quantity)
		switch {
		case errors.Is(err, catalog.ErrInsufficientStock):
			// another sale took the units after our read
			return nil, nil, insufficientStock(l.product, l.quantity)
		case errors.Is(err, catalog.ErrProductNotFound):
			return nil, nil, apperr.NotFound("Product not found.")
		case err != nil:
			return nil, nil, err
		}
		touched = append(touched, *after)
	}
	return order, touched, nil
}

func (s *Service) afterStockWrite(ctx context.Context, touched []catalog.Product) {
	for _, p := range touched {
		s.watcher.Check(ctx, p)
	}
}

// UpdateStatus sets any of the four statuses regardless of the current one and
// notifies staff and the customer for PROCESSING, DELIVERED and CANCELLED.
func (s *Service) UpdateStatus(ctx context.Context, who accounts.Identity, orderID, status string) (*View, error) {
	if !who.IsStaff() {
		return nil, errNotStaff
	}
	current, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, ok := ParseStatus(status)
	if !ok {
		return nil, apperr.Invalid("Invalid status provided.", map[string][]string{
			"status": {fmt.Sprintf("%q is not one of PENDING, PROCESSING, DELIVERED, CANCELLED.", status)},
		})
	}

	err = s.orders.UpdateStatus(ctx, orderID, current.Status, next)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Conflict("Order status was changed by another request. Please retry.")
	}
	if err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, metrics.OrderStatusChanged, 1)
	log.Printf("[orders] order=%s status %s -> %s by %s", orderID, current.Status, next, who.AccountID)

	current.Status = next
	view, stored := s.settled(ctx, current)
	for _, n := range statusNotifications(stored, next) {
		notifications.Send(ctx, s.sink, n)
	}
	return view, nil
}

// Delete soft-deletes an order. Only the owner or staff may delete it.
func (s *Service) Delete(ctx context.Context, who accounts.Identity, orderID string) error {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.CustomerID != who.AccountID && !who.IsStaff() {
		return apperr.Forbidden("You do not have permission to delete this order.")
	}
	created, err := s.orders.MarkDeleted(ctx, orderID)
	if err != nil {
		return err
	}
	if !created {
		return apperr.BadRequest("Order has already been deleted.")
	}
	log.Printf("[orders] order=%s deleted by %s", orderID, who.AccountID)
	return nil
}

// Get returns one order. Customers see only their own orders that are not deleted.
func (s *Service) Get(ctx context.Context, who accounts.Identity, orderID string) (*View, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !who.IsStaff() {
		if o.CustomerID != who.AccountID {
			return nil, apperr.Forbidden("You do not have permission to view this order.")
		}
		deleted, err := s.orders.IsDeleted(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if deleted {
			return nil, apperr.NotFound("Order not found.")
		}
	}
	views, err := s.views(ctx, []Order{*o})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListAll is the administrative listing and includes deleted orders.
func (s *Service) ListAll(ctx context.Context, who accounts.Identity) ([]View, error) {
	if !who.IsStaff() {
		return nil, errNotStaff
	}
	return s.list(ctx, Filter{IncludeDeleted: true})
}

// ListForCustomer lists the caller's own orders.
func (s *Service) ListForCustomer(ctx context.Context, who accounts.Identity) ([]View, error) {
	return s.list(ctx, Filter{CustomerID: who.AccountID})
}

// ListByStatus lists orders in the given statuses for staff work queues.
func (s *Service) ListByStatus(ctx context.Context, who accounts.Identity, statuses ...Status) ([]View, error) {
	if !who.IsStaff() {
		return nil, errNotStaff
	}
	return s.list(ctx, Filter{Statuses: statuses})
}

var errNotStaff = apperr.Forbidden("You do not have permission to perform this action.")

func (s *Service) list(ctx context.Context, f Filter) ([]View, error) {
	list, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, list)
}

func (s *Service) get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, apperr.NotFound("Order not found.")
	}
	return o, err
}

func (s *Service) load(ctx context.Context, orderID string) (*View, *Order, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	views, err := s.views(ctx, []Order{*o})
	if err != nil {
		return nil, nil, err
	}
	return &views[0], o, nil
}

// settled reloads a committed order for the response. The write already
// happened, so a failed reload falls back to the in-memory order.
func (s *Service) settled(ctx context.Context, committed *Order) (*View, *Order) {
	view, stored, err := s.load(ctx, committed.ID)
	if err == nil {
		return view, stored
	}
	log.Printf("[orders] reload order=%s after commit: %v", committed.ID, err)
	v := newView(*committed, "")
	return &v, committed
}

func (s *Service) views(ctx context.Context, list []Order) ([]View, error) {
	statuses := map[string]string{}
	if s.payments != nil && len(list) > 0 {
		ids := make([]string, len(list))
		for i, o := range list {
			ids[i] = o.ID
		}
		var err error
		if statuses, err = s.payments.LatestStatuses(ctx, ids); err != nil {
			return nil, fmt.Errorf("payment status: %w", err)
		}
	}
	out := make([]View, len(list))
	for i, o := range list {
		out[i] = newView(o, statuses[o.ID])
	}
	return out, nil
}

func insufficientStock(p catalog.Product, want int) error {
	return apperr.Invalid(
		fmt.Sprintf("Insufficient stock for %s.", p.Name),
		map[string][]string{p.ID: {fmt.Sprintf("requested %d, available %d", want, p.Stock)}},
	)
}
