// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	for _, d := range []struct {
		name string
		cfg  DeviceConfig
	}{
		{"putter", cfg.Putter},
		{"weight", cfg.Weight},
	} {
		if d.cfg.BaudRate < 0 {
			return fmt.Errorf("%s: baud_rate must be >= 0", d.name)
		}
		if d.cfg.TimeoutMs < 0 {
			return fmt.Errorf("%s: timeout_ms must be >= 0", d.name)
		}
		if d.cfg.Poll.IntervalMs < 0 {
			return fmt.Errorf("%s: poll.interval_ms must be >= 0", d.name)
		}
		if d.cfg.UnitID > 247 {
			return fmt.Errorf("%s: unit_id %d out of range 0-247", d.name, d.cfg.UnitID)
		}
	}

	// same path twice would put both devices on one session
	if cfg.Putter.Port != "" && cfg.Putter.Port == cfg.Weight.Port {
		return fmt.Errorf("putter and weight share port %q", cfg.Putter.Port)
	}

	// ------------------------------------------------------------
	// READER
	// ------------------------------------------------------------

	if cfg.Reader.ChunkLimit > 125 {
		return fmt.Errorf("reader: chunk_limit %d exceeds the Modbus maximum of 125", cfg.Reader.ChunkLimit)
	}

	// ------------------------------------------------------------
	// UPLOAD
	// ------------------------------------------------------------

	if cfg.Upload.BaseURL == "" {
		return fmt.Errorf("upload: base_url is required")
	}
	u, err := url.Parse(cfg.Upload.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upload: base_url %q must be an absolute http(s) URL", cfg.Upload.BaseURL)
	}
	if cfg.Upload.TimeoutMs < 0 {
		return fmt.Errorf("upload: timeout_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// MQTT (OPT-IN)
	// ------------------------------------------------------------

	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker is required when the section is present")
		}
		if strings.ContainsAny(cfg.MQTT.Topic, "#+") {
			return fmt.Errorf("mqtt: topic %q must not contain wildcards", cfg.MQTT.Topic)
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
			return fmt.Errorf("log: level %q: %w", cfg.Log.Level, err)
		}
	}

	return nil
}
