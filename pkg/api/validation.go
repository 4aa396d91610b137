package api

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ipv4Pattern accepts dotted quads with octets 0-255. Leading zeros up to
// three digits are allowed ("010.1.1.1").
var ipv4Pattern = regexp.MustCompile(`^(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// ValidIPv4 reports whether s is a dotted-quad IPv4 address.
func ValidIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// NormalizeIPv4 strips leading zeros from each octet of a valid address so
// "010.1.1.1" and "10.1.1.1" name the same host. Invalid input is returned
// unchanged.
func NormalizeIPv4(s string) string {
	if !ValidIPv4(s) {
		return s
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		n, _ := strconv.Atoi(p)
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

var registerOnce sync.Once

// registerValidators adds the custom rules to gin's validator and reports
// fields by their JSON or form name.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("strictipv4", func(fl validator.FieldLevel) bool {
			return ValidIPv4(fl.Field().String())
		})
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// fieldError returns the first validation failure of err, if any.
func fieldError(err error) (validator.FieldError, bool) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0], true
	}
	return nil, false
}

// bindMessage turns a binding error into a client-facing message.
func bindMessage(err error) string {
	fe, ok := fieldError(err)
	if !ok {
		return "Invalid request body"
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return "Invalid " + fe.Field() + ": must be one of " + fe.Param()
	case "min", "max":
		return "Invalid " + fe.Field() + ": out of range"
	default:
		return "Invalid " + fe.Field()
	}
}
