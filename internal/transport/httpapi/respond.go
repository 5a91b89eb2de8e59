package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/waha-notification-bridge/internal/providers/waha"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Status: "error", Detail: detail})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// validationDetail renders validator failures as "field: rule" pairs.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Field()+": "+rule)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// gatewayStatus maps a gateway failure onto the HTTP status returned to the
// caller.
func gatewayStatus(err error) int {
	var gwErr *waha.GatewayError
	switch {
	case errors.Is(err, waha.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, waha.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, waha.ErrSessionNotReady):
		return http.StatusBadRequest
	case errors.Is(err, waha.ErrChannelAborted):
		return http.StatusBadGateway
	case errors.As(err, &gwErr):
		if gwErr.Code >= 400 && gwErr.Code < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case errors.Is(err, waha.ErrGatewayUnavailable), errors.Is(err, waha.ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
