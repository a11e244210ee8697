package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tiancaiamao/toolstream/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxBufferBytes caps everything seen in one model turn.
	DefaultMaxBufferBytes = 1 << 20
	// DefaultMaxParamBytes caps a single parameter value while it streams.
	DefaultMaxParamBytes = 100 * 1024
	// DefaultContentTool is the tool whose "content" parameter may contain
	// its own closing tag.
	DefaultContentTool = "write_to_file"
)

// Config represents the application configuration.
type Config struct {
	// Parser configuration
	Parser ParserConfig `json:"parser" yaml:"parser"`

	// Logging configuration
	Log *LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// ParserConfig contains the allow-lists and limits of the stream parser.
type ParserConfig struct {
	MaxBufferBytes int          `json:"maxBufferBytes" yaml:"maxBufferBytes"`
	MaxParamBytes  int          `json:"maxParamBytes" yaml:"maxParamBytes"`
	ContentTool    string       `json:"contentTool" yaml:"contentTool"`
	Tools          []ToolConfig `json:"tools" yaml:"tools"`
}

// ToolConfig declares one allowed tool and its allowed parameters.
// Order matters: it is the match precedence for ambiguous tags.
type ToolConfig struct {
	Name   string   `json:"name" yaml:"name"`
	Params []string `json:"params" yaml:"params"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level      string `json:"level,omitempty" yaml:"level,omitempty"`           // Log level: debug, info, warn, error
	File       string `json:"file,omitempty" yaml:"file,omitempty"`             // Log file path (empty = no file logging)
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty"`         // Log prefix
	MaxSizeMB  int    `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`   // Rotate after this many megabytes
	MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"` // Rotated files to keep
}

// DefaultTools returns the standard coding-agent tool set.
func DefaultTools() []ToolConfig {
	return []ToolConfig{
		{Name: "execute_command", Params: []string{"command", "cwd"}},
		{Name: "read_file", Params: []string{"path", "start_line", "end_line"}},
		{Name: "write_to_file", Params: []string{"path", "content", "line_count"}},
		{Name: "apply_diff", Params: []string{"path", "diff"}},
		{Name: "search_files", Params: []string{"path", "regex", "file_pattern"}},
		{Name: "list_files", Params: []string{"path", "recursive"}},
		{Name: "ask_followup_question", Params: []string{"question", "follow_up"}},
		{Name: "attempt_completion", Params: []string{"result", "command"}},
	}
}

// DefaultParserConfig returns default parser configuration.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		MaxBufferBytes: DefaultMaxBufferBytes,
		MaxParamBytes:  DefaultMaxParamBytes,
		ContentTool:    DefaultContentTool,
		Tools:          DefaultTools(),
	}
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "info",
		Prefix: "[toolstream]",
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Parser: DefaultParserConfig(),
		Log:    DefaultLogConfig(),
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*logger.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}

	cfg := &logger.Config{
		Level:      logger.ParseLogLevel(c.Level),
		Prefix:     c.Prefix,
		Console:    true,
		File:       c.File != "",
		FilePath:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}

	return logger.NewLogger(cfg)
}

// Validate checks that the parser configuration is usable.
func (c ParserConfig) Validate() error {
	if c.MaxBufferBytes <= 0 {
		return fmt.Errorf("maxBufferBytes must be positive, got %d", c.MaxBufferBytes)
	}
	if c.MaxParamBytes <= 0 {
		return fmt.Errorf("maxParamBytes must be positive, got %d", c.MaxParamBytes)
	}

	seen := make(map[string]bool, len(c.Tools))
	var errs []error
	for i, tool := range c.Tools {
		if err := validateTagName(tool.Name); err != nil {
			errs = append(errs, fmt.Errorf("tools[%d]: %w", i, err))
			continue
		}
		if seen[tool.Name] {
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate tool %q", i, tool.Name))
			continue
		}
		seen[tool.Name] = true
		for _, param := range tool.Params {
			if err := validateTagName(param); err != nil {
				errs = append(errs, fmt.Errorf("tools[%d] %s: %w", i, tool.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func validateTagName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if strings.ContainsAny(name, "<>/ \t\r\n") {
		return fmt.Errorf("name %q contains tag delimiters or whitespace", name)
	}
	return nil
}

// LoadConfig loads configuration from file and merges with environment variables.
// Environment variables take precedence over config file values.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadConfig(configPath string) (*Config, error) {
	// Start with default config. Tools are filled in after decoding so a
	// file's tool list replaces the defaults instead of merging into them.
	cfg := DefaultConfig()
	cfg.Parser.Tools = nil

	// Load from file if exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Merge with defaults (file values override defaults)
		if isYAML(configPath) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.Parser.Tools == nil {
		cfg.Parser.Tools = DefaultTools()
	}

	applyEnv(cfg)

	if err := cfg.Parser.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parser config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(cfg *Config, configPath string) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".toolstream", "config.json"), nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
