package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
)

const timeLayout = "2006-01-02 15:04"

func renderOrders(w io.Writer, list []orders.Order) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Customer", "Status", "Type", "Items", "Total", "Created")
	for _, o := range list {
		row := []string{
			o.ID,
			o.Customer.Email,
			string(o.Status),
			string(o.OrderType),
			strconv.Itoa(len(o.Items)),
			o.TotalAmount.StringFixed(2),
			o.CreatedAt.Format(timeLayout),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render orders: %w", err)
		}
	}
	return table.Render()
}

func renderProducts(w io.Writer, products []catalog.Product) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Category", "Stock", "Price")
	for _, p := range products {
		row := []string{p.ID, p.Name, p.Category, strconv.Itoa(p.Stock), p.Price.StringFixed(2)}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render products: %w", err)
		}
	}
	return table.Render()
}

// renderAccounts prints the seeded accounts; tokens may be nil.
func renderAccounts(w io.Writer, accs []accounts.Account, tokens map[string]string) error {
	table := tablewriter.NewWriter(w)
	if tokens != nil {
		table.Header("ID", "Email", "Role", "Token")
	} else {
		table.Header("ID", "Email", "Role")
	}
	for _, a := range accs {
		row := []string{a.ID, a.Email, a.Role}
		if tokens != nil {
			row = append(row, tokens[a.ID])
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render accounts: %w", err)
		}
	}
	return table.Render()
}
