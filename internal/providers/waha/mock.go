package waha

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates supported behaviours for the mock gateway.
type Scenario string

const (
	ScenarioSuccess     Scenario = "success"
	ScenarioNotReady    Scenario = "not_ready"
	ScenarioNotFound    Scenario = "not_found"
	ScenarioAuth        Scenario = "auth"
	ScenarioAborted     Scenario = "aborted"
	ScenarioTimeout     Scenario = "timeout"
	ScenarioUnavailable Scenario = "unavailable"
)

// MockOption customises the mock gateway at construction time.
type MockOption func(*MockGateway)

// WithScenario overrides the default scenario.
func WithScenario(s Scenario) MockOption {
	return func(m *MockGateway) {
		m.defaultScenario = s
	}
}

// WithChatScenario applies s only to sends addressed to chatID.
func WithChatScenario(chatID string, s Scenario) MockOption {
	return func(m *MockGateway) {
		m.chatScenarios[chatID] = s
	}
}

// WithLatency sets the artificial latency inserted before responding.
func WithLatency(d time.Duration) MockOption {
	return func(m *MockGateway) {
		if d < 0 {
			d = 0
		}
		m.latency = d
	}
}

// SentMessage records a send accepted by the mock gateway.
type SentMessage struct {
	ChatID  string
	Text    string
	Session string
}

// MockGateway implements Gateway without network access. It is used for
// local runs and in tests of the components that depend on a gateway.
type MockGateway struct {
	logger          zerolog.Logger
	defaultSession  string
	defaultScenario Scenario
	chatScenarios   map[string]Scenario
	latency         time.Duration

	mu   sync.Mutex
	sent []SentMessage
	seq  int
}

// NewMockGateway constructs a mock gateway that succeeds unless configured
// otherwise.
func NewMockGateway(defaultSession string, logger zerolog.Logger, opts ...MockOption) *MockGateway {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	if strings.TrimSpace(defaultSession) == "" {
		defaultSession = "default"
	}
	m := &MockGateway{
		logger:          logger,
		defaultSession:  defaultSession,
		defaultScenario: ScenarioSuccess,
		chatScenarios:   make(map[string]Scenario),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CheckReadiness reports a WORKING session with an identity unless the
// default scenario says otherwise.
func (m *MockGateway) CheckReadiness(ctx context.Context, session string) (*SessionStatus, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.readiness(m.session(session), m.defaultScenario)
}

func (m *MockGateway) readiness(session string, scenario Scenario) (*SessionStatus, error) {
	switch scenario {
	case ScenarioUnavailable:
		return nil, fmt.Errorf("%w: mock gateway is offline", ErrGatewayUnavailable)
	case ScenarioNotFound:
		return nil, fmt.Errorf("%w: session '%s' not found", ErrSessionNotFound, session)
	case ScenarioAuth:
		return nil, fmt.Errorf("%w (401 Unauthorized): mock gateway rejected the api key", ErrAuthFailure)
	case ScenarioNotReady:
		return parseSessionStatus(map[string]any{"name": session, "status": "SCAN_QR_CODE"}), nil
	default:
		return parseSessionStatus(map[string]any{
			"name":   session,
			"status": StatusWorking,
			"me":     map[string]any{"id": "0000000000@c.us", "pushName": "mock"},
		}), nil
	}
}

// SendText simulates a send, honouring per-chat scenarios first.
func (m *MockGateway) SendText(ctx context.Context, chatID, text, session string) (*SendResponse, error) {
	session = m.session(session)

	scenario := m.defaultScenario
	if s, ok := m.chatScenarios[chatID]; ok {
		scenario = s
	}

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	st, err := m.readiness(session, scenario)
	if err != nil {
		return nil, err
	}
	if !st.CanSend() {
		return nil, &SessionNotReadyError{Session: session, Status: st.Status, Ready: st.Ready, Connected: st.Connected, HasIdentity: st.HasIdentity}
	}

	switch scenario {
	case ScenarioAborted:
		return nil, fmt.Errorf("%w: mock gateway aborted the send to '%s'", ErrChannelAborted, chatID)
	case ScenarioTimeout:
		return nil, fmt.Errorf("%w: request to mock gateway timed out (session '%s', chat '%s')", ErrNetwork, session, chatID)
	}

	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("mock-%d", m.seq)
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text, Session: session})
	m.mu.Unlock()

	m.logger.Debug().
		Str("chat_id", chatID).
		Str("session", session).
		Str("message_id", id).
		Msg("mock gateway accepted message")

	return &SendResponse{
		StatusCode: 201,
		Data:       map[string]any{"id": id, "chatId": chatID},
	}, nil
}

// Sent returns a copy of every accepted message in send order.
func (m *MockGateway) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// DiagnoseSessions reports what a session listing would look like under the
// default scenario.
func (m *MockGateway) DiagnoseSessions(ctx context.Context) (*Diagnosis, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	d := &Diagnosis{URL: "mock://waha/api/sessions", HeadersSent: map[string]string{"Accept": "application/json"}}
	switch m.defaultScenario {
	case ScenarioUnavailable:
		d.Failure = FailureConnect
		d.Error = "mock gateway is offline"
		d.ConnectionStatus = "cannot connect to WAHA server"
	case ScenarioTimeout:
		d.Failure = FailureTimeout
		d.Error = "mock gateway timed out"
		d.ConnectionStatus = "request timed out"
	case ScenarioAuth:
		d.StatusCode = 401
		d.ResponseText = `{"message":"Unauthorized"}`
		d.ConnectionStatus = "connected to WAHA server"
	default:
		d.StatusCode = 200
		d.ResponseText = fmt.Sprintf(`[{"name":%q,"status":%q}]`, m.defaultSession, StatusWorking)
		d.Success = true
		d.ConnectionStatus = "connected to WAHA server"
	}
	return d, nil
}

func (m *MockGateway) session(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return m.defaultSession
}

func (m *MockGateway) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
