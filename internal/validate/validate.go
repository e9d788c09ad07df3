// Package validate wraps go-playground/validator with leapgov's custom tags
// and maps failures to core.ErrValidation.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

// shared is safe for concurrent use once the custom validations are registered.
var shared = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("relationship", validateRelationship)
	_ = v.RegisterValidation("entityref", validateEntityRef)
	return v
}

// validateRelationship accepts only the closed set of relationship types.
func validateRelationship(fl validator.FieldLevel) bool {
	return core.RelationshipType(fl.Field().String()).IsKnown()
}

// validateEntityRef requires both halves of an entity reference.
func validateEntityRef(fl validator.FieldLevel) bool {
	ref, ok := fl.Field().Interface().(core.EntityRef)
	return ok && ref.Type != "" && ref.ID != ""
}

// Struct validates s and returns an error wrapping core.ErrValidation that
// names every failing field.
func Struct(s any) error {
	err := shared.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", core.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "entityref":
		return fe.Field() + " is required"
	case "relationship":
		return fmt.Sprintf("%s: unknown relationship type %q", fe.Field(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
