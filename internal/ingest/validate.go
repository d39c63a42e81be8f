package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"report-card-service/internal/domain"
)

var (
	validate   = validator.New()
	translator ut.Translator
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, translator)

	// report fields by their JSON names so messages match what clients send
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidationError lists the failing fields of a struct. It matches domain.ErrInvalidRecord.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidRecord
}

// Check validates v against its struct tags.
func Check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(translator)
	}
	return &ValidationError{Fields: fields}
}

// ValidateRecord checks the field rules of an activity record.
func ValidateRecord(r domain.ActivityRecord) error {
	return Check(r)
}
