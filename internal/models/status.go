package models

import "time"

// Delivery outcome tags.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// DeliveryResult is the per-record outcome of a consume batch. It is appended
// once and never modified.
type DeliveryResult struct {
	Number      string `json:"number"`
	CompanyName string `json:"company_name,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	Offset      int64  `json:"offset"`
}

// BatchResult aggregates one consume invocation.
type BatchResult struct {
	Status    string           `json:"status"`
	BatchID   string           `json:"batch_id"`
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Committed map[string]int64 `json:"committed,omitempty"`
	Results   []DeliveryResult `json:"results"`
}

// RecipientResult is the per-address outcome of a bulk send.
type RecipientResult struct {
	ChatID string `json:"chat_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BulkResult aggregates one bulk send.
type BulkResult struct {
	Status  string            `json:"status"`
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Results []RecipientResult `json:"results"`
}

// StatusEvent is published per delivery outcome when a status topic is
// configured.
type StatusEvent struct {
	EventID     string    `json:"event_id"`
	BatchID     string    `json:"batch_id"`
	Topic       string    `json:"topic"`
	Partition   int32     `json:"partition"`
	Offset      int64     `json:"offset"`
	Number      string    `json:"number,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
