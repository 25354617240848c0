package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shutterspot/shutterspot/internal/api/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("query"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// queryParser collects parse errors across several query parameters.
type queryParser struct {
	r      *http.Request
	errors []models.FieldError
}

func (p *queryParser) floatParam(name string) *float64 {
	raw := strings.TrimSpace(p.r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errors = append(p.errors, models.FieldError{Field: name, Message: "must be a number", Code: "number"})
		return nil
	}
	return &v
}

func (p *queryParser) intParam(name string) int {
	raw := strings.TrimSpace(p.r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errors = append(p.errors, models.FieldError{Field: name, Message: "must be an integer", Code: "integer"})
		return 0
	}
	return v
}

func (p *queryParser) stringParam(name string) string {
	return strings.TrimSpace(p.r.URL.Query().Get(name))
}

// validateQuery runs struct validation and converts failures to field errors.
func validateQuery(q interface{}) []models.FieldError {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "query", Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return "is invalid"
	}
}
