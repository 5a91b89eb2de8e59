package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/dispatch"
	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
	"github.com/example/waha-notification-bridge/internal/worker"
)

const (
	defaultPollTimeoutMS = 5000
	authTroubleshooting  = "Troubleshooting: check GET /debug/config to verify the authentication settings. " +
		"If WAHA was started without WHATSAPP_API_KEY, set WAHA_AUTH_TYPE=none."
)

type sessionStatusResponse struct {
	Status        string              `json:"status"`
	SessionStatus *waha.SessionStatus `json:"session_status"`
	CanSend       bool                `json:"can_send"`
	Note          string              `json:"note"`
}

type sendMessageResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type recipientsResponse struct {
	File       string   `json:"file"`
	Recipients []string `json:"recipients"`
	Count      int      `json:"count"`
}

type configView struct {
	Backend          string   `json:"gateway_backend"`
	BaseURL          string   `json:"waha_base_url"`
	Session          string   `json:"waha_session"`
	APIKeyConfigured bool     `json:"waha_api_key_configured"`
	APIKeyLength     int      `json:"waha_api_key_length"`
	APIKeyPreview    string   `json:"waha_api_key_preview"`
	AuthType         string   `json:"waha_auth_type"`
	AuthFile         string   `json:"waha_auth_file"`
	AuthHeaderSent   bool     `json:"auth_header_will_be_sent"`
	AuthHeader       string   `json:"auth_header,omitempty"`
	RecipientsFile   string   `json:"recipients_file"`
	KafkaBrokers     []string `json:"kafka_bootstrap_servers"`
	KafkaTopic       string   `json:"kafka_topic"`
	KafkaGroup       string   `json:"kafka_consumer_group"`
	KafkaStatusTopic string   `json:"kafka_status_topic,omitempty"`
	StatusReady      *bool    `json:"status_publisher_ready,omitempty"`
	Diagnosis        string   `json:"diagnosis"`
}

type consumeQuery struct {
	MaxMessages   *int `json:"max_messages" validate:"omitempty,gte=0"`
	PollTimeoutMS int  `json:"poll_timeout_ms" validate:"gte=1,lte=300000"`
}

// Health reports liveness only; it never touches the gateway or Kafka.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

// SessionStatus returns the readiness of the default session.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.gateway.CheckReadiness(r.Context(), "")
	if err != nil {
		status := gatewayStatus(err)
		detail := err.Error()
		if status == http.StatusInternalServerError {
			detail = "Error checking session: " + detail
		}
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Status:        "success",
		SessionStatus: st,
		CanSend:       st.CanSend(),
		Note:          "Session should be CONNECTED, ready, or WORKING with an identity to send messages",
	})
}

// DebugConfig shows the effective gateway and queue settings without the key.
func (h *Handler) DebugConfig(w http.ResponseWriter, _ *http.Request) {
	g := h.cfg.Gateway
	key := strings.TrimSpace(g.APIKey)
	view := configView{
		Backend:          g.Backend,
		BaseURL:          g.BaseURL,
		Session:          g.Session,
		APIKeyConfigured: key != "",
		APIKeyLength:     len(key),
		APIKeyPreview:    "Not set",
		AuthType:         g.AuthType,
		AuthFile:         g.AuthFile,
		AuthHeaderSent:   g.HasAPIKey(),
		RecipientsFile:   h.recipients.Path(),
		KafkaBrokers:     h.cfg.Kafka.Brokers,
		KafkaTopic:       h.cfg.Kafka.Topic,
		KafkaGroup:       h.cfg.Kafka.ConsumerGroup,
		KafkaStatusTopic: h.cfg.Kafka.StatusTopic,
	}
	if len(key) > 3 {
		view.APIKeyPreview = key[:3] + "..."
	}
	if h.producer != nil {
		ready := h.producer.IsReady()
		view.StatusReady = &ready
	}
	switch {
	case view.AuthHeaderSent && g.AuthType == config.AuthTypeBearer:
		view.AuthHeader = "Authorization"
	case view.AuthHeaderSent:
		view.AuthHeader = "X-Api-Key"
	}
	switch {
	case view.AuthHeaderSent:
		view.Diagnosis = "auth header will be sent"
	case g.AuthType == config.AuthTypeNone:
		view.Diagnosis = "auth disabled; WAHA must run without WHATSAPP_API_KEY"
	default:
		view.Diagnosis = "no auth header will be sent; set WAHA_API_KEY to match WHATSAPP_API_KEY on the WAHA server"
	}
	writeJSON(w, http.StatusOK, view)
}

// GatewayDiagnostics lists sessions on the gateway and returns the raw
// exchange. Transport failures are part of the 200 body.
func (h *Handler) GatewayDiagnostics(w http.ResponseWriter, r *http.Request) {
	d, err := h.gateway.DiagnoseSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SendMessage delivers one text to a chat address.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return
	}
	chatID := strings.TrimSpace(req.Target())
	if chatID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation error: chatId: required")
		return
	}

	resp, err := h.gateway.SendText(r.Context(), chatID, req.Text, req.Session)
	if err != nil {
		status := gatewayStatus(err)
		detail := err.Error()
		switch status {
		case http.StatusUnauthorized:
			detail += "\n\n" + authTroubleshooting
		case http.StatusInternalServerError:
			detail = "Unexpected error: " + detail
		}
		h.logger.Warn().Err(err).Str("chat_id", chatID).Int("status", status).Msg("send-message failed")
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{Status: "success", Data: resp.Data})
}

// ListRecipients returns the addresses a bulk send would target.
func (h *Handler) ListRecipients(w http.ResponseWriter, _ *http.Request) {
	list, err := h.recipients.Recipients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("could not read recipients file %s: %v", h.recipients.Path(), err))
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, recipientsResponse{File: h.recipients.Path(), Recipients: list, Count: len(list)})
}

// SendBulk sends one text to every recipient in list order.
func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req models.BulkSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return
	}

	res, err := h.bulk.SendBulk(r.Context(), req.Text, req.Session)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoRecipients) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"No valid recipients in %s. Add mobile numbers one per line, e.g. 919920906247 or +91 9920906247.",
				h.recipients.Path()))
			return
		}
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ConsumeNotifications runs one consume batch against the notification topic.
func (h *Handler) ConsumeNotifications(w http.ResponseWriter, r *http.Request) {
	q, err := parseConsumeQuery(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return
	}

	res, err := h.consumer.Consume(r.Context(), worker.ConsumeOptions{
		MaxMessages: q.MaxMessages,
		PollTimeout: time.Duration(q.PollTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		if errors.Is(err, worker.ErrQueueUnavailable) {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf(
				"Could not connect to Kafka at %s: %v", strings.Join(h.cfg.Kafka.Brokers, ","), err))
			return
		}
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseConsumeQuery(r *http.Request) (consumeQuery, error) {
	q := consumeQuery{PollTimeoutMS: defaultPollTimeoutMS}
	values := r.URL.Query()
	if raw := strings.TrimSpace(values.Get("max_messages")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("validation error: max_messages: must be an integer")
		}
		q.MaxMessages = &n
	}
	if raw := strings.TrimSpace(values.Get("poll_timeout_ms")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("validation error: poll_timeout_ms: must be an integer")
		}
		q.PollTimeoutMS = n
	}
	return q, nil
}
