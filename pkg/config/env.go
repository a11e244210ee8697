package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	EnvMaxBufferBytes = "TOOLSTREAM_MAX_BUFFER_BYTES"
	EnvMaxParamBytes  = "TOOLSTREAM_MAX_PARAM_BYTES"
	EnvContentTool    = "TOOLSTREAM_CONTENT_TOOL"
	EnvLogLevel       = "TOOLSTREAM_LOG_LEVEL"
)

// applyEnv overrides file and default values from the environment.
func applyEnv(cfg *Config) {
	if max := GetEnvInt(EnvMaxBufferBytes, 0); max > 0 {
		cfg.Parser.MaxBufferBytes = max
	}
	if max := GetEnvInt(EnvMaxParamBytes, 0); max > 0 {
		cfg.Parser.MaxParamBytes = max
	}
	if val := strings.TrimSpace(os.Getenv(EnvContentTool)); val != "" {
		cfg.Parser.ContentTool = val
	}
	if val := strings.TrimSpace(os.Getenv(EnvLogLevel)); val != "" {
		if cfg.Log == nil {
			cfg.Log = DefaultLogConfig()
		}
		cfg.Log.Level = val
	}
}

// GetEnvInt gets an integer environment variable or returns a default.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
