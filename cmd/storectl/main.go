// Command storectl is the operator tool for the storefront database: schema
// migration, demo seeding and quick tabular reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/config"
	"github.com/RaufCode/venella-pharmacy/internal/db"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
	"github.com/RaufCode/venella-pharmacy/internal/schema"
)

const usage = `usage: storectl <command> [flags]

commands:
  migrate               create or update tables
  seed [-tokens]        insert demo accounts and products
  orders [-status S]    list orders, optionally filtered by status
  low-stock [-threshold N]
                        list products at or below the threshold
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	gdb, err := db.Open(db.FromEnv())
	if err != nil {
		log.Fatalf("[storectl] failed to connect to database: %v", err)
	}

	ctx := context.Background()
	if err := run(ctx, gdb, cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatalf("[storectl] %s: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, gdb *gorm.DB, cfg config.Config, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "migrate":
		start := time.Now()
		if err := schema.Migrate(gdb); err != nil {
			return err
		}
		log.Printf("[storectl] schema ready in %s", time.Since(start))
		return nil

	case "seed":
		fs := flag.NewFlagSet("seed", flag.ContinueOnError)
		tokens := fs.Bool("tokens", false, "print a bearer token for each demo account")
		ttl := fs.Duration("ttl", 24*time.Hour, "lifetime of printed tokens")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := schema.Migrate(gdb); err != nil {
			return err
		}
		seeded, err := seed(ctx, gdb)
		if err != nil {
			return err
		}
		if !*tokens {
			return renderAccounts(out, seeded, nil)
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required to print tokens")
		}
		issued, err := issueTokens(cfg.JWTSecret, seeded, *ttl)
		if err != nil {
			return err
		}
		return renderAccounts(out, seeded, issued)

	case "orders":
		fs := flag.NewFlagSet("orders", flag.ContinueOnError)
		status := fs.String("status", "", "only orders in this status")
		deleted := fs.Bool("deleted", false, "include soft-deleted orders")
		if err := fs.Parse(args); err != nil {
			return err
		}
		f := orders.Filter{IncludeDeleted: *deleted}
		if *status != "" {
			st, ok := orders.ParseStatus(*status)
			if !ok {
				return fmt.Errorf("unknown status %q", *status)
			}
			f.Statuses = []orders.Status{st}
		}
		list, err := orders.NewStore(gdb).List(ctx, f)
		if err != nil {
			return err
		}
		return renderOrders(out, list)

	case "low-stock":
		fs := flag.NewFlagSet("low-stock", flag.ContinueOnError)
		threshold := fs.Int("threshold", cfg.LowStockThreshold, "stock level at or below which a product is listed")
		if err := fs.Parse(args); err != nil {
			return err
		}
		products, err := catalog.NewStore(gdb).LowStock(ctx, *threshold)
		if err != nil {
			return err
		}
		return renderProducts(out, products)
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}
