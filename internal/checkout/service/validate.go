package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	checkoutdomain "github.com/smallbiznis/dojo/internal/checkout/domain"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/plan"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs the struct tags first and then the rules that depend
// on the payment type. It never touches the gateway.
func validateRequest(v *validator.Validate, catalog *plan.Catalog, req *checkoutdomain.CreateIntentRequest) error {
	req.PaymentType = strings.ToLower(strings.TrimSpace(req.PaymentType))
	req.PriceID = strings.TrimSpace(req.PriceID)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.PlanID = strings.TrimSpace(req.PlanID)

	if err := v.Struct(req); err != nil {
		return toValidationError(err)
	}

	switch paymentdomain.PaymentType(req.PaymentType) {
	case paymentdomain.PaymentTypeSubscription:
		if req.PriceID == "" {
			return errs.Required("priceId")
		}
	case paymentdomain.PaymentTypeOneTime:
		if req.Amount == nil {
			return errs.Required("amount")
		}
		if *req.Amount <= 0 {
			return errs.Invalid("amount", "amount must be a positive integer in minor units")
		}
	}

	if req.PlanID != "" && !catalog.Has(req.PlanID) {
		return errs.Invalid("planId", "unknown plan")
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.Invalid("request", err.Error())
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return errs.Required(field)
	case "oneof":
		return errs.Invalid(field, field+" must be one of: "+fe.Param())
	case "email":
		return errs.Invalid(field, field+" must be a valid email")
	default:
		return errs.Invalid(field, field+" failed "+fe.Tag()+" validation")
	}
}
