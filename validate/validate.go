package validate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

var validate *validator.Validate

var translator ut.Translator

var skuRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,31}$`)

func init() {

	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuRe.MatchString(fl.Field().String())
	})
	validate.RegisterTranslation("sku", translator,
		func(ut ut.Translator) error {
			return ut.Add("sku", "{0} must be an upper case SKU such as MUG-RED-01", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("sku", fe.Field())
			return t
		},
	)
}

// Check validates a struct and returns the first failure as a readable
// message, e.g. "Quantity must be 1 or greater".
func Check(val any) error {
	if err := validate.Struct(val); err != nil {

		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		return errors.New(verrors[0].Translate(translator))
	}

	return nil
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("ID is not in its proper form")
	}
	return nil
}

// NormalizeCode upper-cases and trims a user supplied code such as a promo.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
