package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// token: usable as one protocol argument.
	_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && strings.IndexFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsControl(r) || r == '"'
		}) < 0
	})

	// version: x.y or x.y.z.
	_ = v.RegisterValidation("version", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return semver.IsValid("v"+s) && semver.Prerelease("v"+s) == "" && semver.Build("v"+s) == ""
	})
	return v
}

// validate checks the struct tags and reports every offending key.
func validate(cfg *Config) error {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	key := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return key + " is required"
	case "required_with":
		return key + " is required when publish.brokers is set"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", key, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", key, e.Param())
	case "token":
		return fmt.Sprintf("%s %q must not contain whitespace, control characters or quotes", key, e.Value())
	case "version":
		return fmt.Sprintf("%s %q is not a x.y.z version", key, e.Value())
	case "hostname_port":
		return fmt.Sprintf("%s %q is not host:port", key, e.Value())
	}
	return fmt.Sprintf("%s failed %s validation", key, e.Tag())
}
