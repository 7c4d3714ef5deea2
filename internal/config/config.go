// Package config handles Senti configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/senti/config.yaml, /etc/senti/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "senti", "config.yaml"))
	}

	paths = append(paths, "/etc/senti/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Senti configuration.
type Config struct {
	Listen      ListenConfig     `yaml:"listen"`
	LLM         LLMConfig        `yaml:"llm"`
	Embeddings  EmbeddingsConfig `yaml:"embeddings"`
	Agent       AgentConfig      `yaml:"agent"`
	Email       EmailConfig      `yaml:"email"`
	Calendar    CalendarConfig   `yaml:"calendar"`
	DataDir     string           `yaml:"data_dir"`
	PersonaFile string           `yaml:"persona_file"`
	LogLevel    string           `yaml:"log_level"`
	LogFormat   string           `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the reasoning model backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai or ollama
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"base_url"` // Defaults to llm.base_url
	APIKey  string `yaml:"api_key"`  // Defaults to llm.api_key
}

// AgentConfig defines orchestration behavior.
type AgentConfig struct {
	// MaxToolCycles bounds the reason/invoke loop for a single inbound
	// message. Zero means the default of 8.
	MaxToolCycles int `yaml:"max_tool_cycles"`
	// MemoryResults is how many memory records are retrieved per turn
	// (default 4).
	MemoryResults int `yaml:"memory_results"`
}

// EmailConfig defines IMAP and SMTP account settings for the email tools.
// Leaving Host fields empty disables the corresponding tools.
type EmailConfig struct {
	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`
	From string     `yaml:"from"`
}

// IMAPConfig defines the IMAP server connection.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // Default: 993
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"` // Default: INBOX
}

// SMTPConfig defines the SMTP server connection.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // Default: 587 (STARTTLS); 465 = implicit TLS
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CalendarConfig defines the CalDAV account for the calendar tools.
// An empty URL disables the calendar tools.
type CalendarConfig struct {
	URL      string `yaml:"url"` // Calendar collection URL
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "qwen3:4b",
			BaseURL:  "http://localhost:11434",
		},
		Embeddings: EmbeddingsConfig{
			Model: "nomic-embed-text",
		},
		Agent: AgentConfig{
			MaxToolCycles: 8,
			MemoryResults: 4,
		},
		DataDir: "data",
	}
}
