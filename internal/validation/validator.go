package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json names so field errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(saleStructValidation, SaleRequest{})

	return v
}

// saleStructValidation rejects a sale that lists the same product twice; the
// stock check runs per line and would otherwise see the full stock each time.
func saleStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(SaleRequest)

	seen := make(map[string]bool, len(req.Items))
	for _, it := range req.Items {
		if it.Product == "" {
			continue
		}
		if seen[it.Product] {
			sl.ReportError(req.Items, "items", "Items", "unique_products", it.Product)
			return
		}
		seen[it.Product] = true
	}
}
