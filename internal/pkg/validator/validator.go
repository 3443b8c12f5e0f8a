package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var merchantOrderIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Merchant order id validation: the gateway rejects whitespace and
	// URL-unsafe characters, fail early here instead
	validate.RegisterValidation("merchant_order_id", func(fl validator.FieldLevel) bool {
		return merchantOrderIDPattern.MatchString(fl.Field().String())
	})

	// Channel validation
	validate.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		channel := fl.Field().String()
		validChannels := []string{"android", "ios", "web", ""}
		for _, c := range validChannels {
			if channel == c {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email address"
		case "gt":
			errors[field] = "Must be greater than " + err.Param()
		case "max":
			errors[field] = "Must be at most " + err.Param() + " characters"
		case "merchant_order_id":
			errors[field] = "Only letters, digits, dot, underscore and dash are allowed"
		case "channel":
			errors[field] = "Invalid channel"
		default:
			errors[field] = "Invalid value"
		}
	}
	return errors
}
