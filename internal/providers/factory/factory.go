package factory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
)

// Gateway constructs the configured WhatsApp gateway. Supports WAHA and mock
// backends.
func Gateway(cfg config.GatewayConfig, logger zerolog.Logger) (waha.Gateway, error) {
	backend := normalize(cfg.Backend, config.BackendWAHA)
	switch backend {
	case config.BackendWAHA:
		client, err := waha.NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("factory: waha client init: %w", err)
		}
		logger.Info().
			Str("backend", backend).
			Str("base_url", cfg.BaseURL).
			Str("session", client.DefaultSession()).
			Msg("gateway initialised")
		return client, nil
	case config.BackendMock:
		gw := waha.NewMockGateway(cfg.Session, logger)
		logger.Info().
			Str("backend", backend).
			Msg("gateway initialised")
		return gw, nil
	default:
		return nil, fmt.Errorf("factory: unsupported gateway backend %q", cfg.Backend)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
