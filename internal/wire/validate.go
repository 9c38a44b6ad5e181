package wire

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"parley/internal/domain"
)

var (
	validate       = validator.New()
	accountPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

func init() {
	_ = validate.RegisterValidation("account", func(fl validator.FieldLevel) bool {
		return accountPattern.MatchString(fl.Field().String())
	})
}

// ValidAccount reports whether s is a well-formed account id: 1-64 letters,
// digits, '-' or '_'.
func ValidAccount(s string) bool { return accountPattern.MatchString(s) }

// Validate runs the struct's validate tags and reports the first failing
// field as a ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Invalid(fieldName(fe.Namespace()), "must satisfy "+fe.Tag())
	}
	return domain.Invalid("request", err.Error())
}

func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
