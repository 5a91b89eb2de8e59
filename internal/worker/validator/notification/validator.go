package notificationvalidator

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/worker"
)

// FieldError describes one offending field.
type FieldError struct {
	Field   string
	Problem string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Problem)
	}
	return worker.ErrInvalidPayload.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, worker.ErrInvalidPayload) match.
func (e *ValidationError) Is(target error) bool {
	return target == worker.ErrInvalidPayload
}

// Validator implements worker.Validator for notification payloads. Decoding
// happens in two stages: raw JSON into a generic value, then a typed payload
// built with explicit presence and type checks.
type Validator struct {
	logger zerolog.Logger
}

// New constructs a Validator.
func New(logger zerolog.Logger) *Validator {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Validator{logger: logger}
}

// ParseAndValidate decodes value into a NotificationPayload. On a validation
// failure the returned payload carries whatever fields could be read.
func (v *Validator) ParseAndValidate(ctx context.Context, value []byte) (*models.NotificationPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !utf8.Valid(value) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", worker.ErrMalformedPayload)
	}

	var raw any
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", worker.ErrMalformedPayload, err)
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Fields: []FieldError{{Field: "payload", Problem: fmt.Sprintf("expected an object, got %s", kind(raw))}}}
	}

	payload := &models.NotificationPayload{}
	var fields []FieldError

	if s, problem := requiredString(doc, "summary"); problem != "" {
		fields = append(fields, FieldError{Field: "summary", Problem: problem})
	} else {
		payload.Summary = s
	}
	if s, problem := requiredString(doc, "number"); problem != "" {
		fields = append(fields, FieldError{Field: "number", Problem: problem})
	} else {
		payload.Number = s
	}
	if s, problem := optionalString(doc, "company_name"); problem != "" {
		fields = append(fields, FieldError{Field: "company_name", Problem: problem})
	} else {
		payload.CompanyName = s
	}
	if s, problem := optionalString(doc, "pdf_url"); problem != "" {
		fields = append(fields, FieldError{Field: "pdf_url", Problem: problem})
	} else {
		payload.PDFURL = s
	}

	if len(fields) > 0 {
		v.logger.Debug().Int("fields", len(fields)).Msg("notification validator: payload rejected")
		return payload, &ValidationError{Fields: fields}
	}
	return payload, nil
}

func requiredString(doc map[string]any, key string) (string, string) {
	val, ok := doc[key]
	if !ok || val == nil {
		return "", "field required"
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Sprintf("expected a string, got %s", kind(val))
	}
	return s, ""
}

func optionalString(doc map[string]any, key string) (*string, string) {
	val, ok := doc[key]
	if !ok || val == nil {
		return nil, ""
	}
	s, ok := val.(string)
	if !ok {
		return nil, fmt.Sprintf("expected a string, got %s", kind(val))
	}
	return &s, ""
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
