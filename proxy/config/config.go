package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOllamaBase     = "http://ollama:11434"
	DefaultModel          = "llama3.1:latest"
	DefaultBoundedTimeout = 30
	DefaultLogLevel       = "info"

	// AnyModel is echoed in place of the allow-list when it is empty.
	AnyModel = "ANY"
)

const DefaultSystemDirective = "Respondé de forma técnica, clara y concisa. " +
	"Si no sabés, decí 'No lo sé con certeza con el contexto dado'. " +
	"Evitá inventar datos. Contesta siempre en idioma español."

type Config struct {
	OllamaBase      string   `yaml:"ollamaBase"`
	DefaultModel    string   `yaml:"defaultModel"`
	AllowedModels   []string `yaml:"allowedModels"`
	CORSOrigins     []string `yaml:"corsOrigins"`
	SystemDirective string   `yaml:"systemDirective"`
	RequiredAPIKeys []string `yaml:"apiKeys"`

	// seconds, applies to version/tags/show/delete/copy/embeddings
	BoundedTimeout int `yaml:"boundedTimeout"`

	LogLevel string `yaml:"logLevel"`
}

// Policy is the immutable view of Config handed to request-shaping code.
// Copies are cheap and share nothing mutable with the Config they came from.
type Policy struct {
	RuntimeBaseURL  string
	DefaultModel    string
	AllowedModels   []string
	SystemDirective string
	BoundedTimeout  time.Duration
}

func (p Policy) Unrestricted() bool {
	return len(p.AllowedModels) == 0
}

func (p Policy) Allows(model string) bool {
	if p.Unrestricted() {
		return true
	}
	for _, allowed := range p.AllowedModels {
		if allowed == model {
			return true
		}
	}
	return false
}

// Policy returns a defensive copy of the request-shaping settings.
func (c Config) Policy() Policy {
	return Policy{
		RuntimeBaseURL:  c.OllamaBase,
		DefaultModel:    c.DefaultModel,
		AllowedModels:   append([]string(nil), c.AllowedModels...),
		SystemDirective: c.SystemDirective,
		BoundedTimeout:  time.Duration(c.BoundedTimeout) * time.Second,
	}
}

func (c Config) AllowAllOrigins() bool {
	if len(c.CORSOrigins) == 0 {
		return true
	}
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func LoadConfig(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	cfg, err := LoadConfigFromReader(file)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromReader decodes YAML without applying defaults so the result
// can still be merged with environment overrides.
func LoadConfigFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge returns c with every non-empty field of overrides applied on top.
func (c Config) Merge(overrides Config) Config {
	if v := strings.TrimSpace(overrides.OllamaBase); v != "" {
		c.OllamaBase = v
	}
	if v := strings.TrimSpace(overrides.DefaultModel); v != "" {
		c.DefaultModel = v
	}
	if len(overrides.AllowedModels) > 0 {
		c.AllowedModels = overrides.AllowedModels
	}
	if len(overrides.CORSOrigins) > 0 {
		c.CORSOrigins = overrides.CORSOrigins
	}
	if overrides.SystemDirective != "" {
		c.SystemDirective = overrides.SystemDirective
	}
	if len(overrides.RequiredAPIKeys) > 0 {
		c.RequiredAPIKeys = overrides.RequiredAPIKeys
	}
	if overrides.BoundedTimeout > 0 {
		c.BoundedTimeout = overrides.BoundedTimeout
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		c.LogLevel = v
	}
	return c
}

func AddDefaults(c Config) Config {
	if strings.TrimSpace(c.OllamaBase) == "" {
		c.OllamaBase = DefaultOllamaBase
	}
	c.OllamaBase = NormalizeBaseURL(c.OllamaBase)

	if strings.TrimSpace(c.DefaultModel) == "" {
		c.DefaultModel = DefaultModel
	}
	c.DefaultModel = strings.TrimSpace(c.DefaultModel)

	c.AllowedModels = cleanList(c.AllowedModels)
	c.CORSOrigins = cleanList(c.CORSOrigins)
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	c.RequiredAPIKeys = cleanList(c.RequiredAPIKeys)

	if c.SystemDirective == "" {
		c.SystemDirective = DefaultSystemDirective
	}
	if c.BoundedTimeout <= 0 {
		c.BoundedTimeout = DefaultBoundedTimeout
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

func (c Config) Validate() error {
	u, err := url.Parse(c.OllamaBase)
	if err != nil {
		return fmt.Errorf("invalid ollamaBase %q: %w", c.OllamaBase, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid ollamaBase %q: missing host", c.OllamaBase)
	}
	if strings.TrimSpace(c.SystemDirective) == "" {
		return errors.New("systemDirective must not be blank")
	}
	if c.BoundedTimeout <= 0 {
		return fmt.Errorf("boundedTimeout must be positive, got %d", c.BoundedTimeout)
	}
	return nil
}

// ParseList splits a comma separated value, dropping blanks.
func ParseList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// NormalizeBaseURL adds a missing scheme and drops trailing slashes, so
// "127.0.0.1:11434/" becomes "http://127.0.0.1:11434".
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}
