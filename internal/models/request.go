package models

// NotificationPayload is the event carried on the notification topic. Optional
// fields are pointers so an absent value can be told apart from an empty one.
type NotificationPayload struct {
	CompanyName *string `json:"company_name,omitempty"`
	PDFURL      *string `json:"pdf_url,omitempty"`
	Summary     string  `json:"summary"`
	Number      string  `json:"number"`
}

// Company returns the company name or an empty string when absent.
func (p *NotificationPayload) Company() string {
	if p == nil || p.CompanyName == nil {
		return ""
	}
	return *p.CompanyName
}

// SendMessageRequest is the body accepted by the direct send endpoint.
// ChatIDAlt accepts the snake_case spelling used by some clients.
type SendMessageRequest struct {
	ChatID    string `json:"chatId"`
	ChatIDAlt string `json:"chat_id,omitempty"`
	Text      string `json:"text" validate:"required"`
	Session   string `json:"session,omitempty"`
}

// Target returns the chat address, preferring chatId over chat_id.
func (r SendMessageRequest) Target() string {
	if r.ChatID != "" {
		return r.ChatID
	}
	return r.ChatIDAlt
}

// BulkSendRequest is the body accepted by the bulk send endpoint.
type BulkSendRequest struct {
	Text    string `json:"text" validate:"required"`
	Session string `json:"session,omitempty"`
}
