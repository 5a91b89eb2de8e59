package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported gateway authentication header styles.
const (
	AuthTypeAPIKey = "X-Api-Key"
	AuthTypeBearer = "Bearer"
	AuthTypeNone   = "none"
)

// Supported gateway backends.
const (
	BackendWAHA = "waha"
	BackendMock = "mock"
)

// Config captures all runtime configuration for the notification bridge. It is
// built once at process start and handed to each component constructor.
type Config struct {
	App        AppConfig
	Gateway    GatewayConfig
	Kafka      KafkaConfig
	Recipients RecipientsConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// GatewayConfig describes how to reach the WAHA messaging gateway.
type GatewayConfig struct {
	Backend        string
	BaseURL        string
	Session        string
	APIKey         string
	AuthType       string
	AuthFile       string
	Debug          bool
	SendTimeoutSec int
	ConnectTimeout int
	StatusTimeout  int
}

// HasAPIKey reports whether an auth header will be attached to gateway calls.
func (g GatewayConfig) HasAPIKey() bool {
	return g.AuthType != AuthTypeNone && strings.TrimSpace(g.APIKey) != ""
}

// KafkaConfig defines broker information for the notification topic.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	StatusTopic   string
	ClientID      string
}

// RecipientsConfig points at the static recipient list used for bulk sends.
type RecipientsConfig struct {
	File string
}

// Load reads environment variables, merges the optional WAHA auth file,
// applies defaults, validates values and returns a populated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8002, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Gateway.Backend = strings.ToLower(ldr.getString("GATEWAY_BACKEND", BackendWAHA, false))
	cfg.Gateway.BaseURL = strings.TrimRight(ldr.getString("WAHA_BASE_URL", "http://localhost:3000", false), "/")
	cfg.Gateway.Session = ldr.getString("WAHA_SESSION", "default", false)
	cfg.Gateway.APIKey = ldr.getString("WAHA_API_KEY", "", false)
	cfg.Gateway.AuthType = ldr.getAuthType("WAHA_AUTH_TYPE", AuthTypeAPIKey)
	cfg.Gateway.AuthFile = ldr.getString("WAHA_AUTH_FILE", "waha-auth.env", false)
	cfg.Gateway.Debug = ldr.getBool("WAHA_DEBUG", false, false)
	cfg.Gateway.SendTimeoutSec = ldr.getInt("WAHA_SEND_TIMEOUT_SECONDS", 60, false)
	cfg.Gateway.ConnectTimeout = ldr.getInt("WAHA_CONNECT_TIMEOUT_SECONDS", 10, false)
	cfg.Gateway.StatusTimeout = ldr.getInt("WAHA_STATUS_TIMEOUT_SECONDS", 10, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	cfg.Kafka.Topic = ldr.getString("KAFKA_TOPIC_NOTIFICATION_PAYLOAD", "notification-payload", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "finvarta-whatsapp-notification-consumer", false)
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_STATUS_TOPIC", "", false)
	cfg.Kafka.ClientID = ldr.getString("KAFKA_CLIENT_ID", "waha-notification-bridge", false)

	cfg.Recipients.File = ldr.getString("WAHA_RECIPIENTS_FILE", "recipients.txt", false)

	ldr.applyAuthFile(&cfg.Gateway)
	ldr.check(cfg)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseAuthType maps user supplied auth type spellings onto the canonical
// header style. The second return value is false for unknown values.
func ParseAuthType(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "x-api-key", "apikey", "api-key":
		return AuthTypeAPIKey, true
	case "bearer":
		return AuthTypeBearer, true
	case "none":
		return AuthTypeNone, true
	default:
		return "", false
	}
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

// applyAuthFile loads WAHA_API_KEY and WAHA_AUTH_TYPE from the auth file.
// Values present in the environment always win over the file.
func (l *envLoader) applyAuthFile(g *GatewayConfig) {
	path := strings.TrimSpace(g.AuthFile)
	if path == "" {
		return
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.addError(fmt.Sprintf("WAHA_AUTH_FILE %s could not be read: %v", path, err))
		}
		return
	}

	if key := strings.TrimSpace(values["WAHA_API_KEY"]); key != "" {
		if _, set := os.LookupEnv("WAHA_API_KEY"); !set {
			g.APIKey = key
		}
	}
	if raw, ok := values["WAHA_AUTH_TYPE"]; ok {
		if _, set := os.LookupEnv("WAHA_AUTH_TYPE"); !set {
			if authType, valid := ParseAuthType(raw); valid {
				g.AuthType = authType
			}
		}
	}
}

func (l *envLoader) check(cfg *Config) {
	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		l.addError("APP_PORT must be between 1 and 65535")
	}
	switch cfg.Gateway.Backend {
	case BackendWAHA, BackendMock:
	default:
		l.addError(fmt.Sprintf("GATEWAY_BACKEND %q is not supported", cfg.Gateway.Backend))
	}
	if u, err := url.Parse(cfg.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		l.addError("WAHA_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.Gateway.SendTimeoutSec <= 0 {
		l.addError("WAHA_SEND_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Gateway.ConnectTimeout <= 0 {
		l.addError("WAHA_CONNECT_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Gateway.StatusTimeout <= 0 {
		l.addError("WAHA_STATUS_TIMEOUT_SECONDS must be positive")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		l.addError("KAFKA_BOOTSTRAP_SERVERS must contain at least one entry")
	}
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getAuthType(key, def string) string {
	raw := l.getString(key, "", false)
	if raw == "" {
		return def
	}
	authType, ok := ParseAuthType(raw)
	if !ok {
		l.addError(fmt.Sprintf("%s must be one of X-Api-Key, Bearer, none", key))
		return def
	}
	return authType
}

func (l *envLoader) getStringSlice(key, def string) []string {
	raw := l.getString(key, def, false)
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
