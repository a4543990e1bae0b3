// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Config is the full lectern configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" yaml:"retrieval"`
	Corpus      CorpusConfig      `mapstructure:"corpus" yaml:"corpus"`
	Recommend   RecommendConfig   `mapstructure:"recommend" yaml:"recommend"`
	Guard       GuardConfig       `mapstructure:"guard" yaml:"guard"`
	OpenLibrary OpenLibraryConfig `mapstructure:"openlibrary" yaml:"openlibrary"`
	Upstream    UpstreamConfig    `mapstructure:"upstream" yaml:"upstream"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Host string     `mapstructure:"host" yaml:"host"`
	Port int        `mapstructure:"port" yaml:"port"`
	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
}

// CORSConfig holds CORS settings for the HTTP service.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// LLMConfig selects and configures the chat provider.
type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`

	OpenAIAPIKey   string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel    string `mapstructure:"openai_model" yaml:"openai_model"`
	OpenAIEndpoint string `mapstructure:"openai_endpoint" yaml:"openai_endpoint"`

	AnthropicAPIKey   string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	AnthropicModel    string `mapstructure:"anthropic_model" yaml:"anthropic_model"`
	AnthropicEndpoint string `mapstructure:"anthropic_endpoint" yaml:"anthropic_endpoint"`

	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// EmbeddingConfig configures the embeddings used by similarity search.
type EmbeddingConfig struct {
	Model    string `mapstructure:"model" yaml:"model"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// RetrievalConfig selects the candidate search backend.
type RetrievalConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	ChromaURL  string `mapstructure:"chroma_url" yaml:"chroma_url"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	DefaultK   int    `mapstructure:"default_k" yaml:"default_k"`
	MaxK       int    `mapstructure:"max_k" yaml:"max_k"`
}

// CorpusConfig selects where book summaries are read from. Path is the
// summaries file; database backends ingest from it. DSN defaults to
// lectern.db in the data directory for sqlite.
type CorpusConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	Watch   bool   `mapstructure:"watch" yaml:"watch"`
}

// RecommendConfig configures the orchestrator.
type RecommendConfig struct {
	MismatchPolicy string `mapstructure:"mismatch_policy" yaml:"mismatch_policy"`
}

// GuardConfig configures the moderation denylist. Terms replaces the
// built-in list when non-empty; ExtraTerms is appended to it.
type GuardConfig struct {
	Terms      []string `mapstructure:"terms" yaml:"terms"`
	ExtraTerms []string `mapstructure:"extra_terms" yaml:"extra_terms"`
}

// OpenLibraryConfig configures the bibliographic enrichment client.
type OpenLibraryConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// UpstreamConfig configures retries for all outbound calls.
type UpstreamConfig struct {
	BackoffsMS []int `mapstructure:"backoffs_ms" yaml:"backoffs_ms"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Supported backend names.
const (
	RetrievalChroma = "chroma"
	RetrievalFTS    = "fts"

	CorpusFile = "file"
)

// envAliases are environment variables accepted in addition to the
// LECTERN_ prefixed form of each key.
var envAliases = map[string][]string{
	"llm.openai_api_key":    {"OPENAI_API_KEY"},
	"llm.anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"llm.openai_model":      {"CHAT_MODEL"},
	"embedding.model":       {"EMBED_MODEL"},
	"retrieval.chroma_url":  {"CHROMA_URL"},
}

// Load reads configuration into v and unmarshals it.
// Priority: CLI flags bound to v > environment > config file > defaults.
// Secrets missing after that are read from the system keyring.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lectern/")
		v.SetConfigName("lectern")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LECTERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{key, "LECTERN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecretsFromKeyring(&cfg)

	return &cfg, nil
}

// SQLiteDSN returns the sqlite database location.
func (c *Config) SQLiteDSN() string {
	if c.Corpus.DSN != "" {
		return c.Corpus.DSN
	}
	return filepath.Join(GetDataDir(), "lectern.db")
}

// SetDefaults registers every key with its default value. Keys must be
// known to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.enabled", true)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", true)
	v.SetDefault("server.cors.max_age", 86400)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.openai_endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic_endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 60)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.endpoint", "")

	v.SetDefault("retrieval.backend", RetrievalChroma)
	v.SetDefault("retrieval.chroma_url", "http://localhost:8000")
	v.SetDefault("retrieval.collection", "book_summaries")
	v.SetDefault("retrieval.default_k", 3)
	v.SetDefault("retrieval.max_k", 50)

	v.SetDefault("corpus.backend", CorpusFile)
	v.SetDefault("corpus.path", "data/book_summaries.json")
	v.SetDefault("corpus.dsn", "")
	v.SetDefault("corpus.watch", false)

	v.SetDefault("recommend.mismatch_policy", string(recommend.PolicySubstitute))

	v.SetDefault("guard.terms", []string{})
	v.SetDefault("guard.extra_terms", []string{})

	v.SetDefault("openlibrary.base_url", "https://openlibrary.org")
	v.SetDefault("openlibrary.timeout_seconds", 15)

	v.SetDefault("upstream.backoffs_ms", []int{300, 700, 1200})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// Validate checks the configuration for values no component can run with.
// Missing API keys are reported by the components that need them.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm provider: %q (must be openai or anthropic)", c.LLM.Provider)
	}

	switch c.Retrieval.Backend {
	case RetrievalChroma, RetrievalFTS:
	default:
		return fmt.Errorf("invalid retrieval backend: %q (must be chroma or fts)", c.Retrieval.Backend)
	}
	if c.Retrieval.DefaultK < 1 {
		return fmt.Errorf("retrieval.default_k must be at least 1, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.MaxK < c.Retrieval.DefaultK {
		return fmt.Errorf("retrieval.max_k (%d) must not be below retrieval.default_k (%d)", c.Retrieval.MaxK, c.Retrieval.DefaultK)
	}

	if c.Corpus.Backend == CorpusFile {
		if c.Corpus.Path == "" {
			return fmt.Errorf("corpus.path is required for the file backend")
		}
	} else {
		dialect, err := corpus.ParseDialect(c.Corpus.Backend)
		if err != nil {
			return fmt.Errorf("invalid corpus backend: %w", err)
		}
		if dialect != corpus.DialectSQLite && c.Corpus.DSN == "" {
			return fmt.Errorf("corpus.dsn is required for the %s backend", c.Corpus.Backend)
		}
	}
	if c.Retrieval.Backend == RetrievalFTS && c.Corpus.Backend == CorpusFile {
		return fmt.Errorf("retrieval backend fts needs a database corpus backend (sqlite, postgres or mysql)")
	}

	if _, err := recommend.ParsePolicy(c.Recommend.MismatchPolicy); err != nil {
		return err
	}

	for _, ms := range c.Upstream.BackoffsMS {
		if ms < 0 {
			return fmt.Errorf("upstream.backoffs_ms must not contain negative delays")
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %q (must be text or json)", c.Logging.Format)
	}

	return nil
}

// RetryPolicy converts the upstream settings into a retry policy. The
// per-attempt timeout stays at the package default.
func (c *Config) RetryPolicy() upstream.Policy {
	p := upstream.DefaultPolicy()
	if c.Upstream.BackoffsMS != nil {
		p.Backoffs = make([]time.Duration, len(c.Upstream.BackoffsMS))
		for i, ms := range c.Upstream.BackoffsMS {
			p.Backoffs[i] = time.Duration(ms) * time.Millisecond
		}
	}
	return p
}

// OpenLibraryTimeout returns the per-attempt timeout for Open Library calls.
func (c *Config) OpenLibraryTimeout() time.Duration {
	if c.OpenLibrary.TimeoutSeconds <= 0 {
		return upstream.DefaultPolicy().Timeout
	}
	return time.Duration(c.OpenLibrary.TimeoutSeconds) * time.Second
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.OpenAIAPIKey = mask(c.LLM.OpenAIAPIKey)
	out.LLM.AnthropicAPIKey = mask(c.LLM.AnthropicAPIKey)
	out.Corpus.DSN = mask(c.Corpus.DSN)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Keyring service name for secret storage.
const ServiceName = "lectern"

// SecretMapping defines how a keyring secret maps to a config field.
type SecretMapping struct {
	KeyringKey string                // Key name in the system keyring
	Setter     func(*Config, string) // Function to set the config value
	IsSet      func(*Config) bool    // Function to check if already set
}

// secretMappings lists every secret that can be stored in the keyring.
var secretMappings = []SecretMapping{
	{
		KeyringKey: "openai_api_key",
		Setter:     func(c *Config, v string) { c.LLM.OpenAIAPIKey = v },
		IsSet:      func(c *Config) bool { return c.LLM.OpenAIAPIKey != "" },
	},
	{
		KeyringKey: "anthropic_api_key",
		Setter:     func(c *Config, v string) { c.LLM.AnthropicAPIKey = v },
		IsSet:      func(c *Config) bool { return c.LLM.AnthropicAPIKey != "" },
	},
	{
		KeyringKey: "corpus_dsn",
		Setter:     func(c *Config, v string) { c.Corpus.DSN = v },
		IsSet:      func(c *Config) bool { return c.Corpus.DSN != "" },
	},
}

// SecretKeys returns the keyring key names that Load consults.
func SecretKeys() []string {
	keys := make([]string, len(secretMappings))
	for i, m := range secretMappings {
		keys[i] = m.KeyringKey
	}
	return keys
}

// loadSecretsFromKeyring fills secrets that are still empty. Keyring
// failures are ignored; the keyring is optional.
func loadSecretsFromKeyring(cfg *Config) {
	for _, mapping := range secretMappings {
		if mapping.IsSet(cfg) {
			continue
		}
		if secret, err := GetSecretFromKeyring(mapping.KeyringKey); err == nil && secret != "" {
			mapping.Setter(cfg, secret)
		}
	}
}

// SaveSecretToKeyring stores a secret in the system keyring.
func SaveSecretToKeyring(key, value string) error {
	if !isSecretKey(key) {
		return fmt.Errorf("unknown secret key: %s (valid keys: %s)", key, strings.Join(SecretKeys(), ", "))
	}
	return keyring.Set(ServiceName, key, value)
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

func isSecretKey(key string) bool {
	for _, m := range secretMappings {
		if m.KeyringKey == key {
			return true
		}
	}
	return false
}
