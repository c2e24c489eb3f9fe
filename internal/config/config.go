// Package config loads tool configuration from defaults, an optional TOML
// file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"cardmarket-lab/internal/llm"
)

// Defaults.
const (
	DefaultOllamaBaseURL       = "http://localhost:11434"
	DefaultOllamaModel         = "qwen2.5:7b-instruct"
	DefaultGeminiModel         = "gemini-2.0-flash"
	DefaultMinConfidence       = 0.65
	DefaultTitleCacheVersion   = 1
	DefaultTitleCacheSize      = 10000
	DefaultTitleConcurrency    = 8
	DefaultTitleBackfillMax    = 50000
	DefaultIngestConcurrency   = 1
	DefaultCompMode            = "deterministic"
	DefaultEnvFile             = ".env"
	DefaultMetricsAddr         = ""
	DefaultAWSRegion           = "us-east-1"
	DefaultModelMaxRetries     = 2
	DefaultModelTimeoutSeconds = 20
)

// Duration is a time.Duration that decodes from strings such as "20s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := parseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	return d, nil
}

// Config holds all tool configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Model      ModelConfig      `toml:"model"`
	TitleCache TitleCacheConfig `toml:"title_cache"`
	Mapping    MappingConfig    `toml:"mapping"`
	Ingest     IngestConfig     `toml:"ingest"`
	S3         S3Config         `toml:"s3"`
}

type DatabaseConfig struct {
	PostgresDSN   string `toml:"postgres_dsn"`
	ClickHouseDSN string `toml:"clickhouse_dsn"`
}

type ModelConfig struct {
	Provider      string   `toml:"provider"` // ollama | gemini | none
	OllamaBaseURL string   `toml:"ollama_base_url"`
	OllamaModel   string   `toml:"ollama_model"`
	GeminiAPIKey  string   `toml:"gemini_api_key"`
	GeminiModel   string   `toml:"gemini_model"`
	Timeout       Duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
}

type TitleCacheConfig struct {
	MinConfidence float64 `toml:"min_confidence"`
	SchemaVersion int     `toml:"schema_version"`
	Size          int     `toml:"size"`
	Concurrency   int     `toml:"concurrency"`
	BackfillMax   int     `toml:"backfill_max"`
}

type MappingConfig struct {
	AcceptLowConfidenceWhenNoAlternative bool `toml:"accept_low_confidence_when_no_alternative"`
}

type IngestConfig struct {
	Concurrency int    `toml:"concurrency"`
	CompMode    string `toml:"comp_mode"`
	MetricsAddr string `toml:"metrics_addr"`
}

type S3Config struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:      llm.ProviderOllama,
			OllamaBaseURL: DefaultOllamaBaseURL,
			OllamaModel:   DefaultOllamaModel,
			GeminiModel:   DefaultGeminiModel,
			Timeout:       Duration{DefaultModelTimeoutSeconds * time.Second},
			MaxRetries:    DefaultModelMaxRetries,
		},
		TitleCache: TitleCacheConfig{
			MinConfidence: DefaultMinConfidence,
			SchemaVersion: DefaultTitleCacheVersion,
			Size:          DefaultTitleCacheSize,
			Concurrency:   DefaultTitleConcurrency,
			BackfillMax:   DefaultTitleBackfillMax,
		},
		Mapping: MappingConfig{AcceptLowConfidenceWhenNoAlternative: true},
		Ingest: IngestConfig{
			Concurrency: DefaultIngestConcurrency,
			CompMode:    DefaultCompMode,
			MetricsAddr: DefaultMetricsAddr,
		},
		S3: S3Config{Region: DefaultAWSRegion},
	}
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	Path    string                          // TOML file; empty skips it
	EnvFile string                          // Default: ".env"; a missing file is not an error
	Lookup  func(key string) (string, bool) // Default: os.LookupEnv
}

// Load builds a Config from defaults, the TOML file, the .env file and the
// environment. Variables already set in the environment win over .env.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := cfg.readFile(opts.Path); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.strVar(&c.Database.PostgresDSN, "DATABASE_URL")
	env.strVar(&c.Database.ClickHouseDSN, "CLICKHOUSE_DSN")

	env.strVar(&c.Model.Provider, "MODEL_PROVIDER")
	env.strVar(&c.Model.OllamaBaseURL, "OLLAMA_BASE_URL")
	env.strVar(&c.Model.OllamaModel, "QWEN_MODEL")
	env.strVar(&c.Model.OllamaModel, "OLLAMA_MODEL")
	env.strVar(&c.Model.GeminiAPIKey, "GEMINI_API_KEY")
	env.strVar(&c.Model.GeminiModel, "GEMINI_MODEL")
	env.durationVar(&c.Model.Timeout.Duration, "MODEL_TIMEOUT")

	env.floatVar(&c.TitleCache.MinConfidence, "TITLE_CACHE_MIN_CONF")
	env.intVar(&c.TitleCache.SchemaVersion, "TITLE_CACHE_VERSION")
	env.intVar(&c.TitleCache.Size, "TITLE_CACHE_SIZE")
	env.intVar(&c.TitleCache.Concurrency, "TITLE_CACHE_CONCURRENCY")
	env.intVar(&c.TitleCache.BackfillMax, "TITLE_CACHE_BACKFILL_MAX")

	env.boolVar(&c.Mapping.AcceptLowConfidenceWhenNoAlternative, "ACCEPT_LOW_CONFIDENCE_WHEN_NO_ALTERNATIVE")

	env.strVar(&c.S3.Region, "AWS_REGION")
	env.strVar(&c.S3.Endpoint, "S3_ENDPOINT")
	env.strVar(&c.S3.AccessKey, "S3_ACCESS_KEY_ID")
	env.strVar(&c.S3.SecretKey, "S3_SECRET_ACCESS_KEY")

	return errors.Join(env.errs...)
}

// LLM returns the model backend configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider:      c.Model.Provider,
		OllamaBaseURL: c.Model.OllamaBaseURL,
		OllamaModel:   c.Model.OllamaModel,
		GeminiAPIKey:  c.Model.GeminiAPIKey,
		GeminiModel:   c.Model.GeminiModel,
		Timeout:       c.Model.Timeout.Duration,
		MaxRetries:    c.Model.MaxRetries,
	}
}

// Visited returns the names of flags set explicitly on the command line.
// Tools use it so flags override the loaded configuration only when given.
func Visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) strVar(dst *string, key string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVar(dst *int, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) floatVar(dst *float64, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (e *envReader) boolVar(dst *bool, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (e *envReader) durationVar(dst *time.Duration, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
