// internal/config/config.go
package config

type Config struct {
	Putter  DeviceConfig  `yaml:"putter"`
	Weight  DeviceConfig  `yaml:"weight"`
	Reader  ReaderConfig  `yaml:"reader"`
	Upload  UploadConfig  `yaml:"upload"`
	Store   StoreConfig   `yaml:"store"`
	MQTT    *MQTTConfig   `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Access  AccessConfig  `yaml:"access"`
	Log     LogConfig     `yaml:"log"`
}

// ---- DEVICE ----

// DeviceConfig describes one serial device.
// An empty Port is resolved from the store, then by identification probe.
type DeviceConfig struct {
	Port      string     `yaml:"port"`
	UnitID    uint8      `yaml:"unit_id"`
	BaudRate  int        `yaml:"baud_rate"`
	TimeoutMs int        `yaml:"timeout_ms"`
	Poll      PollConfig `yaml:"poll"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- READER ----

type ReaderConfig struct {
	ChunkLimit uint16 `yaml:"chunk_limit"`
}

// ---- UPLOAD ----

type UploadConfig struct {
	BaseURL    string `yaml:"base_url"`
	DeviceCode string `yaml:"device_code"`
	Token      string `yaml:"token"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ---- STORE ----

type StoreConfig struct {
	Path string `yaml:"path"`
}

// ---- MQTT (optional) ----

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// ---- ACCESS ----

type AccessConfig struct {
	CanPutWithoutAuth bool `yaml:"can_put_without_auth"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}
