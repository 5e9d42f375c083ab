package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("config: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})
}

// Validate checks cfg against its struct tags. Each failure names the
// config key, e.g. "retry.jitter".
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	verrors, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return err
	}

	errs := make([]error, len(verrors))
	for i, verr := range verrors {
		key := strings.TrimPrefix(verr.Namespace(), "Config.")
		errs[i] = errors.New(key + ": " + verr.Translate(translator))
	}

	return errors.Join(errs...)
}
