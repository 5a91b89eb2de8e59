package models_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/example/waha-notification-bridge/internal/models"
)

func TestDeliveryResultAlwaysEmitsNumber(t *testing.T) {
	raw, err := json.Marshal(models.DeliveryResult{Status: models.OutcomeSkipped, Error: "parse error: missing summary", Topic: "notification-payload"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"number":""`) {
		t.Fatalf("expected empty number key, got %s", raw)
	}
}

func TestRecipientResultUsesSnakeCaseChatID(t *testing.T) {
	raw, err := json.Marshal(models.RecipientResult{ChatID: "919920906247@c.us", Status: models.OutcomeSuccess})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"chat_id":"919920906247@c.us"`) {
		t.Fatalf("expected chat_id key, got %s", raw)
	}
	if strings.Contains(string(raw), "chatId") {
		t.Fatalf("unexpected camelCase key in %s", raw)
	}
}
