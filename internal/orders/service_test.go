package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/carts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/dbtest"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

type recordingSink struct {
	mu  sync.Mutex
	got []notifications.Notification
}

func (r *recordingSink) Notify(ctx context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingSink) ofType(t notifications.Type) []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifications.Notification
	for _, n := range r.got {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fakePayments map[string]string

func (f fakePayments) LatestStatuses(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if st, ok := f[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

type unavailablePayments struct{}

func (unavailablePayments) LatestStatuses(ctx context.Context, ids []string) (map[string]string, error) {
	return nil, errors.New("payments database unavailable")
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	db       *gorm.DB
	sink     *recordingSink
	payments fakePayments
	svc      *Service
	products *catalog.Store
	carts    *carts.Store

	ama   accounts.Identity
	kofi  accounts.Identity
	staff accounts.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T(),
		&accounts.Account{}, &catalog.Product{}, &carts.Cart{}, &carts.CartItem{},
		&Order{}, &OrderItem{}, &DeletedOrder{},
	)
	s.sink = &recordingSink{}
	s.payments = fakePayments{}
	s.svc = NewService(s.db, Config{Sink: s.sink, Payments: s.payments})
	s.products = catalog.NewStore(s.db)
	s.carts = carts.NewStore(s.db, s.products)

	s.ama = s.account("ama@example.com", accounts.RoleCustomer)
	s.kofi = s.account("kofi@example.com", accounts.RoleCustomer)
	s.staff = s.account("esi@example.com", accounts.RoleStaff)
}

func (s *ServiceSuite) account(email, role string) accounts.Identity {
	a := &accounts.Account{Email: email, Role: role}
	s.Require().NoError(accounts.NewStore(s.db).Create(s.ctx, a))
	return accounts.Identity{AccountID: a.ID, Email: a.Email, Role: a.Role}
}

func (s *ServiceSuite) product(name, price string, stock int) *catalog.Product {
	p := &catalog.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	s.Require().NoError(s.products.Create(s.ctx, p))
	return p
}

func (s *ServiceSuite) stock(id string) int {
	p, err := s.products.Get(s.ctx, id)
	s.Require().NoError(err)
	return p.Stock
}

func (s *ServiceSuite) cartWith(who accounts.Identity, lines map[*catalog.Product]int) *carts.Cart {
	for p, qty := range lines {
		_, err := s.carts.AddItem(s.ctx, who, p.ID, qty)
		s.Require().NoError(err)
	}
	c, err := s.carts.ForCustomer(s.ctx, who.AccountID)
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) countOrders() int64 {
	var n int64
	s.Require().NoError(s.db.Model(&Order{}).Count(&n).Error)
	return n
}

func (s *ServiceSuite) TestCheckout_PlacesOrderAndClearsCart() {
	paracetamol := s.product("Paracetamol", "15.00", 50)
	vitaminC := s.product("Vitamin C", "9.99", 40)
	cart := s.cartWith(s.ama, map[*catalog.Product]int{paracetamol: 2, vitaminC: 1})

	view, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "12 Oxford St, Accra"})
	s.Require().NoError(err)

	s.True(decimal.RequireFromString("39.99").Equal(view.TotalAmount), "total %s", view.TotalAmount)
	s.Equal(StatusPending, view.Status)
	s.Equal(OrderTypeOnline, view.OrderType)
	s.Equal(PaymentUnpaid, view.PaymentStatus)
	s.Equal(s.ama.AccountID, view.Customer.ID)
	s.Nil(view.SalesPerson)
	s.Len(view.OrderItems, 2)

	s.Equal(48, s.stock(paracetamol.ID))
	s.Equal(39, s.stock(vitaminC.ID))

	reloaded, err := s.carts.Get(s.ctx, cart.ID)
	s.Require().NoError(err)
	s.Empty(reloaded.Items)

	s.Require().Len(s.sink.got, 2)
	customer := s.sink.got[0]
	s.Equal(notifications.TypeNewOrder, customer.Type)
	s.Equal(notifications.AudienceCustomer, customer.Audience)
	s.Require().NotNil(customer.CustomerID)
	s.Equal(s.ama.AccountID, *customer.CustomerID)
	s.Contains(customer.Content, view.ID)
	staff := s.sink.got[1]
	s.Equal(notifications.AudienceStaff, staff.Audience)
	s.Contains(staff.Content, "ama@example.com")
}

func (s *ServiceSuite) TestCommittedWritesSurviveFailedReload() {
	svc := NewService(s.db, Config{Sink: s.sink, Payments: unavailablePayments{}})
	paracetamol := s.product("Paracetamol", "15.00", 50)
	vitaminC := s.product("Vitamin C", "9.99", 40)
	cart := s.cartWith(s.ama, map[*catalog.Product]int{paracetamol: 2, vitaminC: 1})

	view, err := svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("39.99").Equal(view.TotalAmount))
	s.Equal(PaymentUnpaid, view.PaymentStatus)
	s.Len(view.OrderItems, 2)
	s.Equal(int64(1), s.countOrders())

	placed := s.sink.ofType(notifications.TypeNewOrder)
	s.Require().Len(placed, 2)
	s.Contains(placed[1].Content, "ama@example.com")

	updated, err := svc.UpdateStatus(s.ctx, s.staff, view.ID, "processing")
	s.Require().NoError(err)
	s.Equal(StatusProcessing, updated.Status)
	s.Len(s.sink.ofType(notifications.TypeOrderStatusUpdate), 2)

	sale, err := svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{Items: []SaleLine{{ProductID: vitaminC.ID, Quantity: 1}}})
	s.Require().NoError(err)
	s.Equal(StatusDelivered, sale.Status)
	s.Equal(int64(2), s.countOrders())
}

func (s *ServiceSuite) TestCheckout_ItemPriceIsCapturedAtOrderTime() {
	p := s.product("Ibuprofen", "4.50", 50)
	cart := s.cartWith(s.ama, map[*catalog.Product]int{p: 1})
	view, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Kumasi"})
	s.Require().NoError(err)

	s.Require().NoError(s.db.Model(&catalog.Product{}).Where("id = ?", p.ID).
		Update("price", decimal.RequireFromString("6.00")).Error)

	got, err := s.svc.Get(s.ctx, s.ama, view.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("4.50").Equal(got.OrderItems[0].Amount))
	s.True(decimal.RequireFromString("4.50").Equal(got.TotalAmount))
}

func (s *ServiceSuite) TestCheckout_RequiresFields() {
	_, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{})
	e, ok := apperr.As(err)
	s.Require().True(ok)
	s.Equal(apperr.KindBadRequest, e.Kind)
	s.Contains(e.Fields, "cart")
	s.Contains(e.Fields, "shipping_address")
}

func (s *ServiceSuite) TestCheckout_EmptyCart() {
	cart, err := s.carts.ForCustomer(s.ctx, s.ama.AccountID)
	s.Require().NoError(err)

	_, err = s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))
	s.Equal(int64(0), s.countOrders())
	s.Empty(s.sink.got)
}

func (s *ServiceSuite) TestCheckout_UnknownCart() {
	_, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: "missing", ShippingAddress: "Accra"})
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (s *ServiceSuite) TestCheckout_ForeignCartIsForbidden() {
	p := s.product("Paracetamol", "15.00", 50)
	cart := s.cartWith(s.kofi, map[*catalog.Product]int{p: 1})

	_, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))
	s.Equal(int64(0), s.countOrders())
	s.Equal(50, s.stock(p.ID))

	untouched, err := s.carts.Get(s.ctx, cart.ID)
	s.Require().NoError(err)
	s.Len(untouched.Items, 1)
}

func (s *ServiceSuite) TestCheckout_InsufficientStockRollsBack() {
	plenty := s.product("Plenty", "1.00", 50)
	scarce := s.product("Scarce", "2.00", 3)
	cart := s.cartWith(s.ama, map[*catalog.Product]int{plenty: 1, scarce: 2})
	// stock drops after the item was added
	s.Require().NoError(s.db.Model(&catalog.Product{}).Where("id = ?", scarce.ID).Update("stock", 1).Error)

	_, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))
	s.Equal(int64(0), s.countOrders())
	s.Equal(50, s.stock(plenty.ID))
	s.Equal(1, s.stock(scarce.ID))

	kept, err := s.carts.Get(s.ctx, cart.ID)
	s.Require().NoError(err)
	s.Len(kept.Items, 2)
}

func (s *ServiceSuite) TestCheckout_LowStockAlertThreshold() {
	p := s.product("Amoxicillin", "12.00", 15)

	cart := s.cartWith(s.ama, map[*catalog.Product]int{p: 4})
	_, err := s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Require().NoError(err)
	s.Empty(s.sink.ofType(notifications.TypeProductStockAlert), "11 left is above the threshold")

	cart = s.cartWith(s.ama, map[*catalog.Product]int{p: 1})
	_, err = s.svc.Checkout(s.ctx, s.ama, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Require().NoError(err)

	alerts := s.sink.ofType(notifications.TypeProductStockAlert)
	s.Require().Len(alerts, 1)
	s.Equal(notifications.AudienceStaff, alerts[0].Audience)
	s.Equal("Product Amoxicillin is running low on stock. Only 10 left.", alerts[0].Content)
}

func (s *ServiceSuite) TestRecordOfflineSale() {
	p := s.product("Paracetamol", "15.00", 12)
	q := s.product("Plaster", "3.25", 100)

	view, err := s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: 3}, {ProductID: q.ID, Quantity: 2}},
	})
	s.Require().NoError(err)

	s.Equal(StatusDelivered, view.Status)
	s.Equal(OrderTypeOffline, view.OrderType)
	s.Equal(DefaultSaleAddress, view.ShippingAddress)
	s.Equal(s.staff.AccountID, view.Customer.ID)
	s.Require().NotNil(view.SalesPerson)
	s.Equal(s.staff.AccountID, view.SalesPerson.ID)
	s.True(decimal.RequireFromString("51.50").Equal(view.TotalAmount))
	s.Equal(9, s.stock(p.ID))
	s.Equal(98, s.stock(q.ID))

	s.Empty(s.sink.ofType(notifications.TypeNewOrder))
	s.Len(s.sink.ofType(notifications.TypeProductStockAlert), 1)
}

func (s *ServiceSuite) TestRecordOfflineSale_ForNamedCustomer() {
	p := s.product("Paracetamol", "15.00", 50)
	view, err := s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{
		Items:           []SaleLine{{ProductID: p.ID, Quantity: 1}},
		CustomerID:      s.kofi.AccountID,
		ShippingAddress: "Counter 2",
	})
	s.Require().NoError(err)
	s.Equal(s.kofi.AccountID, view.Customer.ID)
	s.Equal("Counter 2", view.ShippingAddress)
}

func (s *ServiceSuite) TestRecordOfflineSale_IsAllOrNothing() {
	ok := s.product("Plenty", "1.00", 50)
	short := s.product("Scarce", "1.00", 2)

	_, err := s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{
		Items: []SaleLine{{ProductID: ok.ID, Quantity: 5}, {ProductID: short.ID, Quantity: 3}},
	})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))
	s.Equal(int64(0), s.countOrders())
	s.Equal(50, s.stock(ok.ID))
	s.Equal(2, s.stock(short.ID))
}

func (s *ServiceSuite) TestRecordOfflineSale_DuplicateLinesCannotOversell() {
	p := s.product("Scarce", "1.00", 4)

	_, err := s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: 3}, {ProductID: p.ID, Quantity: 3}},
	})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))
	s.Equal(4, s.stock(p.ID))
	s.Equal(int64(0), s.countOrders())
}

func (s *ServiceSuite) TestRecordOfflineSale_Rejections() {
	p := s.product("Paracetamol", "15.00", 50)

	_, err := s.svc.RecordOfflineSale(s.ctx, s.ama, SaleInput{Items: []SaleLine{{ProductID: p.ID, Quantity: 1}}})
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))

	_, err = s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))

	_, err = s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{Items: []SaleLine{{ProductID: p.ID, Quantity: 0}}})
	s.Equal(apperr.KindBadRequest, apperr.KindOf(err))

	_, err = s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{Items: []SaleLine{{ProductID: "nope", Quantity: 1}}})
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.svc.RecordOfflineSale(s.ctx, s.staff, SaleInput{
		Items:      []SaleLine{{ProductID: p.ID, Quantity: 1}},
		CustomerID: "ghost",
	})
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))

	s.Equal(int64(0), s.countOrders())
	s.Equal(50, s.stock(p.ID))
}

func (s *ServiceSuite) placeOrder(who accounts.Identity) *View {
	p := s.product("Item "+who.Email, "10.00", 50)
	cart := s.cartWith(who, map[*catalog.Product]int{p: 1})
	view, err := s.svc.Checkout(s.ctx, who, CheckoutInput{CartID: cart.ID, ShippingAddress: "Accra"})
	s.Require().NoError(err)
	s.sink.got = nil
	return view
}

func (s *ServiceSuite) TestUpdateStatus_NotifiesBothAudiences() {
	order := s.placeOrder(s.ama)

	view, err := s.svc.UpdateStatus(s.ctx, s.staff, order.ID, " processing ")
	s.Require().NoError(err)
	s.Equal(StatusProcessing, view.Status)

	s.Require().Len(s.sink.got, 2)
	s.Equal(notifications.AudienceStaff, s.sink.got[0].Audience)
	s.Equal(notifications.AudienceCustomer, s.sink.got[1].Audience)
	s.Equal(notifications.TypeOrderStatusUpdate, s.sink.got[1].Type)
}

func (s *ServiceSuite) TestUpdateStatus_AnyTransitionAllowed() {
	order := s.placeOrder(s.ama)

	_, err := s.svc.UpdateStatus(s.ctx, s.staff, order.ID, "DELIVERED")
	s.Require().NoError(err)
	view, err := s.svc.UpdateStatus(s.ctx, s.staff, order.ID, "PENDING")
	s.Require().NoError(err)
	s.Equal(StatusPending, view.Status)
	s.Len(s.sink.got, 2, "PENDING sends nothing")
}

func (s *ServiceSuite) TestUpdateStatus_RejectsUnknownStatus() {
	order := s.placeOrder(s.ama)

	_, err := s.svc.UpdateStatus(s.ctx, s.staff, order.ID, "SHIPPED")
	e, ok := apperr.As(err)
	s.Require().True(ok)
	s.Equal(apperr.KindBadRequest, e.Kind)
	s.Equal("Invalid status provided.", e.Detail)

	got, err := s.svc.Get(s.ctx, s.staff, order.ID)
	s.Require().NoError(err)
	s.Equal(StatusPending, got.Status)
	s.Empty(s.sink.got)
}

func (s *ServiceSuite) TestUpdateStatus_Guards() {
	order := s.placeOrder(s.ama)

	_, err := s.svc.UpdateStatus(s.ctx, s.ama, order.ID, "CANCELLED")
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))

	_, err = s.svc.UpdateStatus(s.ctx, s.staff, "missing", "CANCELLED")
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (s *ServiceSuite) TestDelete_Twice() {
	order := s.placeOrder(s.ama)

	s.Require().NoError(s.svc.Delete(s.ctx, s.ama, order.ID))
	err := s.svc.Delete(s.ctx, s.ama, order.ID)
	e, ok := apperr.As(err)
	s.Require().True(ok)
	s.Equal(apperr.KindBadRequest, e.Kind)
	s.Equal("Order has already been deleted.", e.Detail)

	var tombstones int64
	s.Require().NoError(s.db.Model(&DeletedOrder{}).Count(&tombstones).Error)
	s.Equal(int64(1), tombstones)
}

func (s *ServiceSuite) TestDelete_OnlyOwnerOrStaff() {
	order := s.placeOrder(s.ama)

	err := s.svc.Delete(s.ctx, s.kofi, order.ID)
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))
	s.NoError(s.svc.Delete(s.ctx, s.staff, order.ID))
}

func (s *ServiceSuite) TestListings() {
	amaFirst := s.placeOrder(s.ama)
	amaSecond := s.placeOrder(s.ama)
	kofiOrder := s.placeOrder(s.kofi)

	_, err := s.svc.UpdateStatus(s.ctx, s.staff, amaSecond.ID, "PROCESSING")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Delete(s.ctx, s.ama, amaFirst.ID))
	s.payments[kofiOrder.ID] = "COMPLETED"

	mine, err := s.svc.ListForCustomer(s.ctx, s.ama)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(amaSecond.ID, mine[0].ID)

	all, err := s.svc.ListAll(s.ctx, s.staff)
	s.Require().NoError(err)
	s.Len(all, 3, "admin listing keeps deleted orders")

	pending, err := s.svc.ListByStatus(s.ctx, s.staff, StatusPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(kofiOrder.ID, pending[0].ID)
	s.Equal("COMPLETED", pending[0].PaymentStatus)

	processing, err := s.svc.ListByStatus(s.ctx, s.staff, StatusProcessing)
	s.Require().NoError(err)
	s.Require().Len(processing, 1)
	s.Equal(PaymentUnpaid, processing[0].PaymentStatus)

	_, err = s.svc.ListAll(s.ctx, s.ama)
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))
	_, err = s.svc.ListByStatus(s.ctx, s.kofi, StatusPending)
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))
}

func (s *ServiceSuite) TestGet_Visibility() {
	order := s.placeOrder(s.ama)

	_, err := s.svc.Get(s.ctx, s.kofi, order.ID)
	s.Equal(apperr.KindForbidden, apperr.KindOf(err))

	s.Require().NoError(s.svc.Delete(s.ctx, s.ama, order.ID))
	_, err = s.svc.Get(s.ctx, s.ama, order.ID)
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))

	got, err := s.svc.Get(s.ctx, s.staff, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, got.ID)
}
