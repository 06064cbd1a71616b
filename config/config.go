package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/docpanel/docpanel/pkg/logging"
)

// ModelOption is one entry of the model catalog: a user-facing name mapped to
// the backend model identifier that providers understand.
type ModelOption struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	BackendID string `json:"backend_id"`
}

// ModelsConfig holds the model catalog and fallback defaults.
type ModelsConfig struct {
	Available []ModelOption `json:"available"`
	// DefaultTeam is the friendly model name assigned to members that do
	// not pick one.
	DefaultTeam string `json:"default_team"`
	// FallbackBackendID is returned when even the default name is missing
	// from the catalog.
	FallbackBackendID string `json:"fallback_backend_id"`
}

// Resolve maps a friendly model name to a backend model ID. Resolution is
// total: unknown or empty names yield the default, never an error.
func (m ModelsConfig) Resolve(name string) string {
	var defaultID string
	for _, opt := range m.Available {
		if opt.Name == m.DefaultTeam {
			defaultID = opt.BackendID
		}
	}
	if defaultID == "" {
		defaultID = m.FallbackBackendID
	}
	for _, opt := range m.Available {
		if opt.Name == name {
			return opt.BackendID
		}
	}
	return defaultID
}

// Names returns the friendly names present in the catalog.
func (m ModelsConfig) Names() []string {
	names := make([]string, 0, len(m.Available))
	for _, opt := range m.Available {
		names = append(names, opt.Name)
	}
	return names
}

// LimitsConfig bounds request payloads and summary output.
type LimitsConfig struct {
	MaxTeamSize     int   `json:"max_team_size"`
	MaxDocuments    int   `json:"max_documents"`
	MaxPromptLength int   `json:"max_prompt_length"`
	MaxUploadBytes  int64 `json:"max_upload_bytes"`
	SummaryMinItems int   `json:"summary_min_items"`
	SummaryMaxItems int   `json:"summary_max_items"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	UploadDir     string `json:"upload_dir"`
	LogDir        string `json:"log_dir"`
	RatePerMinute int    `json:"rate_per_minute"`

	// TrustProxy makes client identification honor X-Forwarded-For. Leave
	// off unless the server sits behind a proxy that sets the header.
	TrustProxy bool `json:"trust_proxy"`
}

// AppConfig identifies the running application.
type AppConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Config is the full application configuration.
type Config struct {
	App    AppConfig    `json:"app"`
	Server ServerConfig `json:"server"`
	Models ModelsConfig `json:"models"`
	Limits LimitsConfig `json:"limits"`
}

// Default returns the built-in configuration used when no config file exists.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:    "docpanel",
			Version: "1.0.0",
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			UploadDir:     "uploads",
			LogDir:        "logs",
			RatePerMinute: 20,
		},
		Models: ModelsConfig{
			Available: []ModelOption{
				{Name: "nova-micro", Label: "Nova Micro", BackendID: "us.amazon.nova-micro-v1:0"},
				{Name: "nova-lite", Label: "Nova Lite", BackendID: "us.amazon.nova-lite-v1:0"},
				{Name: "nova-pro", Label: "Nova Pro", BackendID: "us.amazon.nova-pro-v1:0"},
				{Name: "nova-premier", Label: "Nova Premier", BackendID: "us.amazon.nova-premier-v1:0"},
			},
			DefaultTeam:       "nova-lite",
			FallbackBackendID: "us.amazon.nova-lite-v1:0",
		},
		Limits: LimitsConfig{
			MaxTeamSize:     10,
			MaxDocuments:    10,
			MaxPromptLength: 2000,
			MaxUploadBytes:  10 * 1024 * 1024,
			SummaryMinItems: 10,
			SummaryMaxItems: 25,
		},
	}
}

// Load reads the config file at path, overlaying it on the defaults. A
// missing or unreadable file is not an error: defaults are returned and a
// warning is logged, matching the behavior operators rely on for local runs.
func Load(path string) Config {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		logging.WithComponent("config").Warn("could not load config file, using defaults",
			"path", path, "error", err)
		return cfg
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		logging.WithComponent("config").Warn("could not parse config file, using defaults",
			"path", path, "error", err)
		return Default()
	}
	return cfg
}

// Validate checks the configuration for internally consistent values.
func (c Config) Validate() error {
	v := NewValidator().
		RequireNonEmpty("app.name", c.App.Name).
		ValidatePort("server.port", c.Server.Port).
		RequireNonEmpty("server.upload_dir", c.Server.UploadDir).
		RequirePositive("limits.max_team_size", c.Limits.MaxTeamSize).
		RequirePositive("limits.max_documents", c.Limits.MaxDocuments).
		RequirePositive("limits.max_prompt_length", c.Limits.MaxPromptLength).
		RequireNonEmpty("models.default_team", c.Models.DefaultTeam)

	if len(c.Models.Available) == 0 {
		return fmt.Errorf("config validation failed: models.available cannot be empty")
	}
	for i, opt := range c.Models.Available {
		v.RequireNonEmpty(fmt.Sprintf("models.available[%d].name", i), opt.Name).
			RequireNonEmpty(fmt.Sprintf("models.available[%d].backend_id", i), opt.BackendID)
	}
	if c.Limits.SummaryMinItems > c.Limits.SummaryMaxItems {
		return fmt.Errorf("config validation failed: summary_min_items exceeds summary_max_items")
	}
	return v.Err()
}
