// Package inputval validates request input with struct tags.
//
// Fields declare rules with `validate:"..."` and a human name with
// `label:"..."`; messages use the label so they can be returned to callers
// as-is. Custom rules: httpurl, objectid, slug, signupkey, orgrole.
package inputval

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	once     sync.Once
	validate *validator.Validate

	slugRe      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$`)
	signupKeyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{6,62}[A-Za-z0-9]$`)
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
		str := func(fn func(string) bool) validator.Func {
			return func(fl validator.FieldLevel) bool { return fn(fl.Field().String()) }
		}
		_ = validate.RegisterValidation("httpurl", str(IsValidHTTPURL))
		_ = validate.RegisterValidation("objectid", str(IsValidObjectID))
		_ = validate.RegisterValidation("slug", str(IsValidSlug))
		_ = validate.RegisterValidation("signupkey", str(IsValidSignupKey))
		_ = validate.RegisterValidation("orgrole", str(IsValidOrgRole))
	})
	return validate
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// Result collects the failed rules for one struct.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "" when valid.
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validate checks s against its validate tags.
func Validate(s any) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range ves {
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s.", label, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s.", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "A valid email address is required."
	case "httpurl":
		return label + " must be an http or https URL."
	case "objectid":
		return label + " is not a valid id."
	case "slug":
		return label + " must be 2-64 lowercase letters, digits or hyphens."
	case "signupkey":
		return label + " must be 8-64 letters, digits, hyphens or underscores, starting and ending with a letter or digit."
	case "orgrole":
		return label + " must be owner, admin or member."
	default:
		return label + " is invalid."
	}
}

// IsValidEmail reports whether s is a bare addr-spec (no display name).
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}

// IsValidHTTPURL reports whether s is an absolute http(s) URL with a host.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func IsValidObjectID(s string) bool {
	return primitive.IsValidObjectID(strings.TrimSpace(s))
}

// IsValidSlug reports whether s is an organization slug: 2-64 chars of
// [a-z0-9-], not starting or ending with a hyphen.
func IsValidSlug(s string) bool {
	return slugRe.MatchString(s)
}

// IsValidSignupKey reports whether s is a well-formed signup key: 8-64 chars
// of [A-Za-z0-9_-] with an alphanumeric first and last character.
func IsValidSignupKey(s string) bool {
	return signupKeyRe.MatchString(s)
}

func IsValidOrgRole(s string) bool {
	switch s {
	case "owner", "admin", "member":
		return true
	}
	return false
}
