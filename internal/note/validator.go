package note

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationResult reports completeness of a note record.
type ValidationResult struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
}

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their json names so the missing-field list
		// matches the export schema.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Whitespace-only text does not count as a documented section.
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// Validate checks a record for completeness and returns the set of missing
// required fields in schema order. It is a pure function: the same record
// always yields the same result, and the record itself is not modified.
//
// Required fields: client_name, session_length, and all four SOAP sections.
// A missing field is never fatal; the caller may still export the note with
// is_complete=false.
func Validate(r Record) ValidationResult {
	err := getValidator().Struct(r)
	if err == nil {
		return ValidationResult{Complete: true, Missing: []string{}}
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// Struct-level failures cannot happen for a flat string record,
		// but never report a note complete on an unknown error.
		return ValidationResult{Complete: false, Missing: []string{}}
	}

	missing := make([]string, 0, len(verrs))
	for _, e := range verrs {
		missing = append(missing, e.Field())
	}
	return ValidationResult{Complete: false, Missing: missing}
}

// Finalize validates r and stamps the derived is_complete flag, returning
// the updated record alongside the validation result.
func Finalize(r Record) (Record, ValidationResult) {
	res := Validate(r)
	r.IsComplete = res.Complete
	return r, res
}
