// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultUnitID           = 1
	DefaultBaudRate         = 115200
	DefaultTimeoutMs        = 3000
	DefaultPutterIntervalMs = 60000
	DefaultWeightIntervalMs = 30000
	DefaultChunkLimit       = 16
	DefaultUploadTimeoutMs  = 10000
	DefaultStorePath        = "kiosk.db"
	DefaultMQTTTopic        = "kiosk"
	DefaultLogLevel         = "info"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	normalizeDevice(&cfg.Putter, DefaultPutterIntervalMs)
	normalizeDevice(&cfg.Weight, DefaultWeightIntervalMs)

	if cfg.Reader.ChunkLimit == 0 {
		cfg.Reader.ChunkLimit = DefaultChunkLimit
	}

	cfg.Upload.BaseURL = strings.TrimRight(cfg.Upload.BaseURL, "/")
	if cfg.Upload.TimeoutMs == 0 {
		cfg.Upload.TimeoutMs = DefaultUploadTimeoutMs
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	if cfg.MQTT != nil {
		cfg.MQTT.Topic = strings.Trim(cfg.MQTT.Topic, "/")
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = DefaultMQTTTopic
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "kiosk-" + cfg.Upload.DeviceCode
		}
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func normalizeDevice(d *DeviceConfig, intervalMs int) {
	if d.UnitID == 0 {
		d.UnitID = DefaultUnitID
	}
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Poll.IntervalMs == 0 {
		d.Poll.IntervalMs = intervalMs
	}
}
