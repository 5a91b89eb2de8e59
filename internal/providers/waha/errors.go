package waha

import (
	"errors"
	"fmt"
	"strings"
)

// Failure categories surfaced by the gateway client. Callers match them with
// errors.Is; typed errors below carry extra detail for errors.As.
var (
	ErrGatewayUnavailable = errors.New("waha gateway unavailable")
	ErrSessionNotFound    = errors.New("waha session not found")
	ErrSessionNotReady    = errors.New("waha session not ready")
	ErrAuthFailure        = errors.New("waha authentication failed")
	ErrChannelAborted     = errors.New("waha request was aborted")
	ErrGatewayError       = errors.New("waha api error")
	ErrNetwork            = errors.New("waha network error")
)

// SessionNotReadyError is returned when the session exists but cannot send.
type SessionNotReadyError struct {
	Session     string
	Status      string
	Ready       bool
	Connected   bool
	HasIdentity bool
}

func (e *SessionNotReadyError) Error() string {
	status := e.Status
	if status == "" {
		status = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "session '%s' is not ready to send messages. Status: %s, Ready: %t, Connected: %t.", e.Session, status, e.Ready, e.Connected)
	if !e.HasIdentity {
		b.WriteString(" WhatsApp connection not established (no 'me' field).")
	}
	b.WriteString(" Ensure the session is fully connected in the WAHA dashboard.")
	return b.String()
}

// Is lets errors.Is(err, ErrSessionNotReady) match.
func (e *SessionNotReadyError) Is(target error) bool {
	return target == ErrSessionNotReady
}

// GatewayError describes a non-success HTTP response that does not fall into
// a more specific category.
type GatewayError struct {
	Code    int
	Body    string
	URL     string
	Session string
	ChatID  string
	Hint    string
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "waha api returned error %d", e.Code)
	if e.URL != "" {
		fmt.Fprintf(&b, " (url %s", e.URL)
		if e.Session != "" {
			fmt.Fprintf(&b, ", session %s", e.Session)
		}
		if e.ChatID != "" {
			fmt.Fprintf(&b, ", chat %s", e.ChatID)
		}
		b.WriteString(")")
	}
	if e.Hint != "" {
		b.WriteString(": ")
		b.WriteString(e.Hint)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString("; response: ")
		b.WriteString(body)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrGatewayError) match.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayError
}

func statusHint(code int, session string) string {
	switch {
	case code == 400:
		return "invalid chat id format, session not ready or invalid message content"
	case code == 404:
		return fmt.Sprintf("session '%s' does not exist or the endpoint is missing in this WAHA version", session)
	case code >= 500:
		return "WAHA server error, WhatsApp connection issue or session disconnected"
	default:
		return ""
	}
}

func authHint(keyConfigured bool, keyLen int) string {
	if !keyConfigured {
		return "no API key configured; set WAHA_API_KEY to match WHATSAPP_API_KEY if the gateway requires authentication"
	}
	return fmt.Sprintf("API key is configured (length: %d chars); verify it matches WHATSAPP_API_KEY on the gateway and has no stray whitespace", keyLen)
}
