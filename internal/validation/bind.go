package validation

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If either fails, it writes a 400 {detail, errors} response and returns an
// error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"detail": "Invalid request body.",
			"errors": map[string][]string{"non_field_errors": {err.Error()}},
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"detail": "Invalid data.",
			"errors": FieldErrors(err),
		})
		return err
	}
	return nil
}

// FieldErrors maps validator errors to field paths such as "items[1].quantity".
func FieldErrors(err error) map[string][]string {
	out := map[string][]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["non_field_errors"] = []string{err.Error()}
		return out
	}
	for _, fe := range ve {
		field := fieldPath(fe.Namespace())
		out[field] = append(out[field], message(fe))
	}
	return out
}

// fieldPath drops the root struct name from a namespace.
func fieldPath(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "required_if":
		return "This field is required for this payment method."
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("Ensure this list has at least %s item(s).", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	case "numeric":
		return "A valid number is required."
	case "len", "alpha":
		return "Enter a valid three-letter currency code."
	case "unique_products":
		return fmt.Sprintf("Product %v is listed more than once.", fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}
