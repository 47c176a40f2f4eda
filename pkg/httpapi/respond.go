package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"code","message"}. Causes of server-side
// failures are logged, never rendered.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"route", r.Pattern,
			"code", e.Code,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Code: e.Code.String(), Message: e.PublicMessage()})
}

// decode reads a JSON body into dst and validates its struct tags.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return sserr.Newf(sserr.CodeValidationRange, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return sserr.Wrap(err, sserr.CodeValidationFormat, "request body is not valid JSON")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError maps the first failed tag onto the validation codes.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return sserr.Wrap(err, sserr.CodeValidation, "invalid request")
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return sserr.Required(field)
	case "max":
		return sserr.Newf(sserr.CodeValidationRange, "%s cannot be longer than %s", field, fe.Param()).
			WithDetail("field", field)
	case "email":
		return sserr.Newf(sserr.CodeValidationFormat, "%s is not a valid email address", field).
			WithDetail("field", field)
	default:
		return sserr.Newf(sserr.CodeValidation, "%s is not valid", field).WithDetail("field", field)
	}
}
