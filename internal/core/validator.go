package core

import (
	"errors"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"subadmin/internal/types"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the console's custom tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors use json tags, and
// decimal.Decimal fields validate as float64 so gte/lte tags apply to money.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("currency_code", validateCurrency)

	return &Validator{validate: v, logger: logger}
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

// ValidateStruct returns an AppError whose code is that of the first failed
// field; every failure is listed under details.validation_errors.
func (v *Validator) ValidateStruct(s any) error {
	res := v.ValidateStructWithWarnings(s)
	if res.IsValid() {
		return nil
	}
	first := res.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil,
		map[string]any{"validation_errors": res.Errors})
}

// ValidateStructWithWarnings runs validation and adds warnings for values
// that are accepted but unusual.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var res ValidationResult

	if err := v.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			v.logger.Error("validator misuse", "error", err)
			res.Errors = append(res.Errors, ValidationError{
				Code:    string(types.ErrCodeValidationInvalidValue),
				Message: "request could not be validated",
			})
			return res
		}
		for _, fe := range verrs {
			res.Errors = append(res.Errors, ValidationError{
				Field:   fieldPath(fe),
				Code:    tagToErrorCode(fe.Tag()),
				Message: messageFor(fe),
			})
		}
	}

	res.Warnings = append(res.Warnings, currencyWarnings(s)...)
	return res
}

// fieldPath drops the top-level struct name from the namespace,
// e.g. "line_items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func tagToErrorCode(tag string) string {
	switch tag {
	case "required", "required_if", "required_with", "required_without":
		return string(types.ErrCodeValidationMissingField)
	case "gte", "gt", "min":
		return string(types.ErrCodeValidationAmount)
	case "dive":
		return string(types.ErrCodeValidationLineItems)
	default:
		return string(types.ErrCodeValidationInvalidValue)
	}
}

func messageFor(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "min", "gte":
		return field + " must be at least " + fe.Param()
	case "max", "lte":
		return field + " must be at most " + fe.Param()
	case "len":
		return field + " must have length " + fe.Param()
	case "currency_code":
		return field + " must be a three-letter currency code"
	default:
		return field + " is invalid"
	}
}

// currencyWarnings flags top-level Currency fields without a display symbol.
func currencyWarnings(s any) []string {
	rv := reflect.Indirect(reflect.ValueOf(s))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	f := rv.FieldByName("Currency")
	if !f.IsValid() || f.Kind() != reflect.String || f.String() == "" {
		return nil
	}
	code := strings.ToUpper(f.String())
	if !types.KnownCurrency(code) {
		return []string{"currency " + code + " has no display symbol; amounts will be shown with the code"}
	}
	return nil
}
