package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"storefront/internal/model"

	"github.com/go-playground/validator/v10"
)

// CartItem is one cart line submitted with the checkout form.
type CartItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// Validator checks checkout input before anything is sent to the API. Every
// method returns the first violation as a *model.ValidationError.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a validator reporting fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Items requires a non-empty cart of well-formed lines.
func (v *Validator) Items(items []CartItem) error {
	if len(items) == 0 {
		return &model.ValidationError{
			Field:          "items",
			Code:           model.ErrCodeEmptyCart,
			Message:        "your cart is empty",
			RedirectToCart: true,
		}
	}
	for i := range items {
		if err := v.check(fmt.Sprintf("items[%d]", i), items[i]); err != nil {
			return err
		}
	}
	return nil
}

// Contact requires a name, an 8 digit phone number and an email with an @.
func (v *Validator) Contact(c model.ContactInfo) error {
	return v.check("", c)
}

// Address requires district and khoroo; the other fields are optional. The
// same rules apply to guest and authenticated checkout.
func (v *Validator) Address(a *model.AddressInput) error {
	if a == nil {
		return model.NewValidationError("address.district", model.ErrCodeMissingField, "district is required")
	}
	return v.check("address", a)
}

func (v *Validator) check(prefix string, s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return fieldError(prefix, verrs[0])
}

func fieldError(prefix string, fe validator.FieldError) *model.ValidationError {
	name := fe.Field()
	field := name
	if prefix != "" {
		field = prefix + "." + name
	}

	switch fe.Tag() {
	case "required":
		return model.NewValidationError(field, model.ErrCodeMissingField, name+" is required")
	case "len":
		return model.NewValidationError(field, model.ErrCodeInvalidField, fmt.Sprintf("%s must be exactly %s digits", name, fe.Param()))
	case "number":
		return model.NewValidationError(field, model.ErrCodeInvalidField, name+" must contain digits only")
	case "contains":
		return model.NewValidationError(field, model.ErrCodeInvalidField, fmt.Sprintf("%s must contain %q", name, fe.Param()))
	case "gt":
		return model.NewValidationError(field, model.ErrCodeInvalidField, fmt.Sprintf("%s must be greater than %s", name, fe.Param()))
	}
	return model.NewValidationError(field, model.ErrCodeInvalidField, name+" is invalid")
}
