package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tags registered by Register.
const (
	TagMemberType = "member_type"
)

// New returns a validator with the custom rules registered.
func New() *validator.Validate {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

// Register adds the custom rules to v and reports fields by their json name.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v.RegisterValidation(TagMemberType, isMemberType)
}

func isMemberType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "USER", "ADMIN":
		return true
	default:
		return false
	}
}
