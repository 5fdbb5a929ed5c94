// Package config loads and validates the settings for the pgoutputd CLI:
// connection parameters, replication options, and the control-plane HTTP
// listen address. It mirrors the teacher's two-step bootstrap (flags layered
// over a struct) but adds a YAML file as the base layer, using the
// teacher's own gopkg.in/yaml.v2 dependency, and validates the merged
// result with gopkg.in/go-playground/validator.v8, the same library behind
// the teacher's `binding` struct tags.
package config

import (
	"os"

	validator "gopkg.in/go-playground/validator.v8"
	yaml "gopkg.in/yaml.v2"
)

// Config is the full set of settings needed to run the replication
// consumer and its HTTP control plane.
type Config struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	Database string `yaml:"database" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`

	SlotName              string `yaml:"slotName" validate:"required"`
	PublicationName       string `yaml:"publicationName" validate:"required"`
	ProtocolVersion       int    `yaml:"protocolVersion" validate:"min=1,max=1"`
	StartLSN              string `yaml:"startLsn"`
	IncludeCustomMessages bool   `yaml:"includeCustomMessages"`

	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`
}

// Default returns a Config with every non-required field set to its
// documented default.
func Default() Config {
	return Config{
		Port:            5432,
		ProtocolVersion: 1,
		StartLSN:        "0/0",
		ListenAddr:      ":8085",
		LogLevel:        "info",
	}
}

// Load reads path as YAML on top of Default(). A missing file is not an
// error — callers typically combine Load with flag overrides, and an
// all-flags invocation need not supply a config file at all.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(&validator.Config{TagName: "validate"})

// Validate checks the merged configuration's required fields and bounds.
func Validate(cfg Config) error {
	return validate.Struct(cfg)
}
