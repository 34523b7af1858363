// Package validation builds struct validators that report field errors in
// English under the field's serialized name.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// RootPathTag validates a root-relative URL path such as "/app.js".
const RootPathTag = "rootpath"

// New returns a validator naming fields by the struct tag tagKey ("json",
// "yaml") and a translator for its messages.
func New(tagKey string) (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	trans, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get(tagKey), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation(RootPathTag, isRootPath); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", RootPathTag, err)
	}
	err := validate.RegisterTranslation(RootPathTag, trans,
		func(t ut.Translator) error {
			return t.Add(RootPathTag, "{0} must be a root-relative path", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(RootPathTag, fe.Field())
			return msg
		})
	if err != nil {
		return nil, nil, fmt.Errorf("register %s translation: %w", RootPathTag, err)
	}
	return validate, trans, nil
}

// Messages joins the translated field errors in err. ok is false when err
// does not carry field errors.
func Messages(err error, trans ut.Translator) (msg string, ok bool) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "", false
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return strings.Join(msgs, "; "), true
}

// "//host/x" parses with a host and would resolve to another origin.
func isRootPath(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/")
}
