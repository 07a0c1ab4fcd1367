package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a loaded configuration for values that would fail at
// runtime in confusing ways.
func Validate(cfg *Config) error {
	if err := validateAssistant(&cfg.Assistant); err != nil {
		return err
	}
	if err := validateHTTPBase("catalog.base_url", cfg.Catalog.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPBase("history.base_url", cfg.History.BaseURL); err != nil {
		return err
	}
	if cfg.History.PageSize <= 0 {
		return fmt.Errorf("history.page_size must be positive, got %d", cfg.History.PageSize)
	}
	if cfg.History.MaxMessages <= 0 {
		return fmt.Errorf("history.max_messages must be positive, got %d", cfg.History.MaxMessages)
	}
	if cfg.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be positive")
	}
	if cfg.History.Timeout <= 0 {
		return fmt.Errorf("history.timeout must be positive")
	}
	if strings.TrimSpace(cfg.Prefs.Path) == "" {
		return fmt.Errorf("prefs.path must not be empty")
	}
	if err := validateLogger(&cfg.Logger); err != nil {
		return err
	}
	if err := validateTracer(&cfg.Tracer); err != nil {
		return err
	}
	return nil
}

func validateAssistant(cfg *AssistantConfig) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("assistant.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("assistant.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("assistant.url missing host")
	}
	if cfg.DialTimeout <= 0 {
		return fmt.Errorf("assistant.dial_timeout must be positive")
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMax < cfg.ReconnectMin {
		return fmt.Errorf("assistant reconnect window invalid: min=%s max=%s",
			cfg.ReconnectMin, cfg.ReconnectMax)
	}
	return nil
}

func validateHTTPBase(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s missing host", field)
	}
	return nil
}

func validateLogger(cfg *LoggerConfig) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logger.level %q not recognized", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json", "":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", cfg.Format)
	}
	return nil
}

func validateTracer(cfg *TracerConfig) error {
	switch cfg.Exporter {
	case "stdout", "noop", "":
	default:
		return fmt.Errorf("tracer.exporter must be stdout or noop, got %q", cfg.Exporter)
	}
	return nil
}
