package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces docvault environment variables.
const envPrefix = "DOCVAULT_"

// Load loads configuration from a YAML file (if configPath is non-empty and
// the file exists), then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DOCVAULT_DATABASE_DSN, DOCVAULT_UPLOAD_DIR, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to config keys via section.field_name:
//
//	DOCVAULT_DATABASE_DSN            -> database.dsn
//	DOCVAULT_VECTORSTORE_PROVIDER    -> vectorstore.provider
//	DOCVAULT_UPLOAD_MAX_FILE_SIZE_BYTES -> upload.max_file_size_bytes
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	// Override with environment variables.
	// Split on the first underscore after the prefix: section, then field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
