package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ptbr_translations "github.com/go-playground/validator/v10/translations/pt_BR"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "{0} deve conter apenas letras, numeros e underscores"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	dateTag  = "date"
	dateText = "{0} deve estar no formato YYYY-MM-DD"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "{0} e obrigatorio"

	// enum tags, checked against the lists in enums.go
	enumTags = map[string][]string{
		"jobstatus":         JobStatuses,
		"projecttype":       ProjectTypes,
		"priority":          Priorities,
		"segment":           ClientSegments,
		"teamrole":          TeamRoles,
		"hiringstatus":      HiringStatuses,
		"deliverablestatus": DeliverableStatuses,
		"posprodstatus":     PosProducaoSubStatuses,
		"historytype":       HistoryEventTypes,
		"role":              AllRoles,
		"costitemstatus":    CostItemStatuses,
		"paymentcondition":  PaymentConditions,
		"paymentmethod":     PaymentMethods,
	}
	enumText = "{0} possui um valor invalido"
)

// NewTranslator returns the pt_BR translator used for validation messages.
func NewTranslator() ut.Translator {
	br := pt_BR.New()
	uni := ut.New(br, br)
	translator, _ := uni.GetTranslator("pt_BR")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = ptbr_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(dateTag, dateValidation)
	RegisterCustomTranslation(validate, translator, dateTag, dateText)

	for tag, values := range enumTags {
		_ = validate.RegisterValidation(tag, enumValidation(values))
		RegisterCustomTranslation(validate, translator, tag, enumText)
	}

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// FieldErrors flattens validator errors into translated FieldErrors.
func FieldErrors(errs validator.ValidationErrors, translator ut.Translator) []FieldError {
	flds := make([]FieldError, 0, len(errs))
	for _, vErr := range errs {
		flds = append(flds, FieldError{Field: fieldPath(vErr.Namespace()), Error: vErr.Translate(translator)})
	}
	return flds
}

// fieldPath drops the struct name from a validator namespace ("NewJob.title" -> "title").
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// dateValidation accepts YYYY-MM-DD strings (and their pointers).
func dateValidation(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

func enumValidation(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return StringIn(fl.Field().String(), values)
	}
}
