package waha

import (
	"context"
	"strings"
)

// Session status values reported by the gateway that matter for sending.
const (
	StatusConnected = "CONNECTED"
	StatusWorking   = "WORKING"
)

// Gateway is the behaviour the rest of the service needs from a WhatsApp
// gateway backend.
type Gateway interface {
	CheckReadiness(ctx context.Context, session string) (*SessionStatus, error)
	SendText(ctx context.Context, chatID, text, session string) (*SendResponse, error)
	DiagnoseSessions(ctx context.Context) (*Diagnosis, error)
}

// SessionStatus is the subset of the gateway session document used to decide
// whether a message may be sent. Raw keeps the full document for diagnostics.
type SessionStatus struct {
	Name        string         `json:"name,omitempty"`
	Status      string         `json:"status"`
	Ready       bool           `json:"ready"`
	Connected   bool           `json:"connected"`
	HasIdentity bool           `json:"has_identity"`
	Me          any            `json:"me,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// CanSend reports whether the session accepts outbound messages: CONNECTED,
// an explicit ready flag, or WORKING with an established identity.
func (s *SessionStatus) CanSend() bool {
	if s == nil {
		return false
	}
	status := strings.ToUpper(strings.TrimSpace(s.Status))
	switch {
	case status == StatusConnected, s.Ready:
		return true
	case status == StatusWorking && s.HasIdentity:
		return true
	default:
		return false
	}
}

// SendResponse carries the gateway acknowledgement of a sent message.
type SendResponse struct {
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data,omitempty"`
	Raw        string `json:"-"`
}

func parseSessionStatus(doc map[string]any) *SessionStatus {
	st := &SessionStatus{Raw: doc}
	if v, ok := doc["name"].(string); ok {
		st.Name = v
	}
	if v, ok := doc["status"].(string); ok {
		st.Status = v
	}
	st.Ready = truthy(doc["ready"])
	st.Connected = truthy(doc["connected"])
	st.Me = doc["me"]
	st.HasIdentity = truthy(doc["me"])
	return st
}

// truthy follows JSON emptiness: null, false, 0, "" and empty containers are
// all considered absent.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
