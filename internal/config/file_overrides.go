package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// FileOverrides is an optional JSON config file layered on top of the
// environment, grounded on the teacher's JaxCoreConfig/LoadJaxCoreConfig
// (cmd/trader's original `-config` flag took the same "env vars take
// precedence" shape). Fields are generalized from the teacher's single
// equities account to the framework's default bot template.
type FileOverrides struct {
	HTTPAddr       string   `json:"httpAddr"`
	DefaultSymbols []string `json:"defaultSymbols"`
	DefaultBalance float64  `json:"defaultBalance"`
	DefaultRiskPct float64  `json:"defaultRiskPercent"`
	PostgresDSN    string   `json:"postgresDsn"`
}

// LoadFileOverrides reads and validates a JSON overrides file.
func LoadFileOverrides(path string) (FileOverrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileOverrides{}, fmt.Errorf("read config file: %w", err)
	}

	var overrides FileOverrides
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&overrides); err != nil {
		return FileOverrides{}, fmt.Errorf("parse config file: %w", err)
	}
	if overrides.DefaultRiskPct == 0 {
		overrides.DefaultRiskPct = 3
	}
	return overrides, nil
}

// Apply layers non-zero FileOverrides fields onto an AppConfig, env vars
// still taking precedence over anything the file doesn't set explicitly
// (mirroring the teacher's own "env vars take precedence" log message).
func (o FileOverrides) Apply(cfg AppConfig) AppConfig {
	if os.Getenv("HTTP_ADDR") == "" && o.HTTPAddr != "" {
		cfg.HTTPAddr = o.HTTPAddr
	}
	if cfg.PostgresDSN == "" && o.PostgresDSN != "" {
		cfg.PostgresDSN = o.PostgresDSN
	}
	if len(o.DefaultSymbols) > 0 {
		cfg.DefaultSymbols = o.DefaultSymbols
	}
	if o.DefaultBalance > 0 {
		cfg.DefaultBalance = o.DefaultBalance
	}
	if o.DefaultRiskPct > 0 {
		cfg.DefaultRiskPercent = o.DefaultRiskPct
	}
	return cfg
}
