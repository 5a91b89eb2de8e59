package factory_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/providers/factory"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
)

func TestGatewayBackends(t *testing.T) {
	gw, err := factory.Gateway(config.GatewayConfig{BaseURL: "http://localhost:3000"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gw.(*waha.Client); !ok {
		t.Fatalf("expected default backend to be the waha client, got %T", gw)
	}

	gw, err = factory.Gateway(config.GatewayConfig{Backend: " MOCK "}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gw.(*waha.MockGateway); !ok {
		t.Fatalf("expected mock gateway, got %T", gw)
	}
}

func TestGatewayRejectsUnknownBackend(t *testing.T) {
	if _, err := factory.Gateway(config.GatewayConfig{Backend: "twilio"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestGatewayRequiresBaseURL(t *testing.T) {
	if _, err := factory.Gateway(config.GatewayConfig{Backend: "waha"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing base url error")
	}
}
