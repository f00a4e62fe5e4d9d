package models

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewPersonRequest is the registration payload as received from clients
type NewPersonRequest struct {
	Nickname  string   `json:"nickname" validate:"required,max=32"`
	Name      string   `json:"name" validate:"required,max=100"`
	Birthdate string   `json:"birthdate" validate:"required,datetime=2006-01-02"`
	Stack     []string `json:"stack" validate:"omitempty,dive,required,max=32"`
}

// FieldError describes one rejected field
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// ValidationError is returned when a registration payload breaks a field constraint
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Msg)
	}
	return "invalid person: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request and returns a *ValidationError listing every broken field
func (r *NewPersonRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Msg: message(fe)})
	}
	return &ValidationError{Fields: fields}
}

// ToPerson validates the request and builds the Person it describes
func (r *NewPersonRequest) ToPerson() (*Person, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	birthdate, err := ParseDate(r.Birthdate)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "birthdate", Msg: "must be a date (YYYY-MM-DD)"}}}
	}

	return NewPerson(r.Nickname, r.Name, birthdate, r.Stack)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	default:
		return "is invalid"
	}
}
