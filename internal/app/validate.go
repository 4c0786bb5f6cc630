package app

import (
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"drivingschool-console/internal/domain"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Field names are rendered next to the input, so the message does not repeat them.
	registerFn := func(ut.Translator) error { return nil }
	_ = validate.RegisterTranslation("required", translator, registerFn, func(ut.Translator, validator.FieldError) string {
		return "this field is required"
	})
}

// validateRequired checks the required fields of a form before any network call.
// Only absent, null and blank string values count as missing; 0 and false are answers.
// It returns nil when every field is present.
func validateRequired(fields domain.Record, required []string) map[string][]string {
	var out map[string][]string
	for _, name := range required {
		var value any
		switch v := fields[name].(type) {
		case nil:
		case string:
			value = strings.TrimSpace(v)
		default:
			continue
		}
		err := validate.Var(value, "required")
		if err == nil {
			continue
		}
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string][]string)
		}
		for _, fe := range verrs {
			out[name] = append(out[name], fe.Translate(translator))
		}
	}
	return out
}
