package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
)

var demoAccounts = []accounts.Account{
	{Email: "customer@venella.test", FirstName: "Ama", LastName: "Mensah", Role: accounts.RoleCustomer},
	{Email: "staff@venella.test", FirstName: "Kofi", LastName: "Asante", Role: accounts.RoleStaff},
	{Email: "admin@venella.test", FirstName: "Efua", LastName: "Owusu", Role: accounts.RoleAdmin},
}

var demoProducts = []catalog.Product{
	{Name: "Paracetamol 500mg (24 tabs)", Category: "pain-relief", Price: decimal.RequireFromString("12.50"), Stock: 50},
	{Name: "Vitamin C 1000mg", Category: "supplements", Price: decimal.RequireFromString("14.99"), Stock: 40},
	{Name: "Oral Rehydration Salts", Category: "digestive", Price: decimal.RequireFromString("3.00"), Stock: 120},
	{Name: "Antiseptic Cream 30g", Category: "first-aid", Price: decimal.RequireFromString("9.75"), Stock: 8},
	{Name: "Digital Thermometer", Category: "devices", Price: decimal.RequireFromString("45.00"), Stock: 5},
}

// seed inserts the demo accounts and products that are not present yet and
// returns the accounts as stored.
func seed(ctx context.Context, gdb *gorm.DB) ([]accounts.Account, error) {
	var out []accounts.Account
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accStore := accounts.NewStore(tx)
		for _, a := range demoAccounts {
			existing, err := accStore.GetByEmail(ctx, a.Email)
			if err == nil {
				out = append(out, *existing)
				continue
			}
			if apperr.KindOf(err) != apperr.KindNotFound {
				return err
			}
			acc := a
			if err := accStore.Create(ctx, &acc); err != nil {
				return err
			}
			out = append(out, acc)
		}

		catStore := catalog.NewStore(tx)
		for _, p := range demoProducts {
			var existing catalog.Product
			err := tx.WithContext(ctx).Where("name = ?", p.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup product %q: %w", p.Name, err)
			}
			prod := p
			if err := catStore.Create(ctx, &prod); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return out, nil
}

func issueTokens(secret string, accs []accounts.Account, ttl time.Duration) (map[string]string, error) {
	out := make(map[string]string, len(accs))
	for _, a := range accs {
		tok, err := auth.Issue(secret, accounts.Identity{AccountID: a.ID, Email: a.Email, Role: a.Role}, ttl)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", a.Email, err)
		}
		out[a.ID] = tok
	}
	return out, nil
}
