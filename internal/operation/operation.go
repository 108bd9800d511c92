// Package operation exposes article lifecycle calls as named operations
// that decode, validate and execute a JSON payload. A request dispatcher
// looks them up in a Registry.
package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"inkwell/api/internal/article"
)

type Operation interface {
	Name() string
	Schema() Schema
	Validate(payload json.RawMessage) (any, error)
	Execute(ctx context.Context, userID string, input any) (any, error)
}

// Schema describes the accepted payload of an operation.
type Schema struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Rules string `json:"rules,omitempty"`
}

// Empty is the result of operations that return nothing.
type Empty struct{}

type typed[In any, Out any] struct {
	name     string
	validate *validator.Validate
	run      func(ctx context.Context, userID string, in In) (Out, error)
}

// New adapts a typed function into an Operation. In is decoded from JSON
// and checked against its `validate` struct tags.
func New[In any, Out any](name string, v *validator.Validate, run func(ctx context.Context, userID string, in In) (Out, error)) Operation {
	return &typed[In, Out]{name: name, validate: v, run: run}
}

func (o *typed[In, Out]) Name() string {
	return o.name
}

func (o *typed[In, Out]) Schema() Schema {
	var in In
	return Schema{Name: o.name, Fields: describe(reflect.TypeOf(in))}
}

func (o *typed[In, Out]) Validate(payload json.RawMessage) (any, error) {
	var in In
	if len(bytes.TrimSpace(payload)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return nil, invalid(fmt.Sprintf("malformed payload: %v", err))
		}
	}
	if err := o.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, invalid(describeErrors(verrs))
		}
		var invalidValue *validator.InvalidValidationError
		if !errors.As(err, &invalidValue) {
			return nil, invalid(err.Error())
		}
	}
	return in, nil
}

func (o *typed[In, Out]) Execute(ctx context.Context, userID string, input any) (any, error) {
	in, ok := input.(In)
	if !ok {
		return nil, invalid(fmt.Sprintf("%s: unexpected input %T", o.name, input))
	}
	return o.run(ctx, userID, in)
}

func invalid(message string) error {
	return &article.Error{Kind: article.KindValidation, Code: "VALIDATION_ERROR", Message: message}
}

func describeErrors(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func describe(t reflect.Type) []Field {
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields = append(fields, Field{Name: name, Type: typeName(f.Type), Rules: f.Tag.Get("validate")})
	}
	return fields
}

func typeName(t reflect.Type) string {
	optional := ""
	if t.Kind() == reflect.Pointer {
		optional = "?"
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string" + optional
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "integer" + optional
	case reflect.Bool:
		return "boolean" + optional
	default:
		return t.Kind().String() + optional
	}
}
