package helpers

import (
	"context"
	"reflect"
	"strings"
	"trustresolver/pkg/logger"
	"trustresolver/pkg/trace"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonschema"
)

// NewValidator creates a new validator
func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

		if name == "-" {
			return ""
		}

		return name
	})

	return validate, nil
}

// Check validates a struct, tracing the check under the given tracer.
func Check(ctx context.Context, tp *trace.Tracer, s any, log *logger.Log) error {
	_, span := tp.Start(ctx, "helpers:check")
	defer span.End()

	validate, err := NewValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(s); err != nil {
		return NewErrorFromError(err)
	}

	return nil
}

// CheckSimple checks for validation error with a simpler signature
func CheckSimple(s any) error {
	validate, err := NewValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(s); err != nil {
		return NewErrorFromError(err)
	}

	return nil
}

// ValidateAgainstJSONSchema validates an arbitrary decoded JSON value (a credential subject, a DID
// document fragment) against a raw JSON Schema document. Used by the credential evaluator's schema
// step when a schema's internal well-formedness must be checked before it is digested.
func ValidateAgainstJSONSchema(schemaText []byte, instance any) error {
	compiler := jsonschema.NewCompiler()

	schema, err := compiler.Compile(schemaText)
	if err != nil {
		return err
	}

	result := schema.Validate(instance)
	if !result.IsValid() {
		return NewErrorFromError(result)
	}

	return nil
}
