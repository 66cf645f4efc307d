package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}

// writePaymentError renders a *PaymentError with the HTTP status of its kind.
// extra fields are merged into the body.
func writePaymentError(w http.ResponseWriter, err error, extra map[string]interface{}) {
	pe := services.AsPaymentError(err)
	body := map[string]interface{}{
		"status":  "error",
		"message": pe.Message,
	}
	if pe.Retryable() {
		body["retryable"] = true
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, statusForKind(pe.Kind), body)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindSignature:
		return http.StatusUnauthorized
	case services.KindProvider:
		return http.StatusBadGateway
	case services.KindNetwork:
		return http.StatusGatewayTimeout
	case services.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// newValidator reports field errors by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "email":
			return fe.Field() + " must be a valid email"
		case "min":
			return fe.Field() + " must be at least " + fe.Param() + " characters"
		default:
			return "invalid " + fe.Field()
		}
	}
	return "invalid request body"
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}
