// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Extractor kinds understood by the extract registry.
const (
	ExtractorJSONLD   = "jsonld"
	ExtractorMVCreate = "mvcreate"
	ExtractorSelector = "selector"
)

// Fetch modes a source can use.
const (
	FetchModeHTTP     = "http"
	FetchModeHeadless = "headless"
	FetchModeAuto     = "auto"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest   HarvestConfig           `mapstructure:"harvest"`
	HTTP      HTTPConfig              `mapstructure:"http"`
	Headless  HeadlessConfig          `mapstructure:"headless"`
	DB        DBConfig                `mapstructure:"db"`
	Archive   ArchiveConfig           `mapstructure:"archive"`
	PubSub    PubSubConfig            `mapstructure:"pubsub"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Tracing   TracingConfig           `mapstructure:"tracing"`
	Reference ReferenceConfig         `mapstructure:"reference"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
}

// HarvestConfig governs fan-out and persistence batching.
type HarvestConfig struct {
	BatchSize        int  `mapstructure:"batch_size"`
	PersistChunkSize int  `mapstructure:"persist_chunk_size"`
	PendingOnly      bool `mapstructure:"pending_only"`
}

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	UserAgents     []string `mapstructure:"user_agents"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	// PromoteThreshold is the body size under which a script-heavy probe
	// response is re-fetched headless in auto mode.
	PromoteThreshold int `mapstructure:"promote_threshold"`
}

// DBConfig controls access to PostgreSQL.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MinConns       int32  `mapstructure:"min_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// ArchiveConfig selects where raw documents are archived, if anywhere.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig sets the listen address for the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig points span export at an OTLP collector. Empty endpoints keep
// spans in-process.
type TracingConfig struct {
	GRPCEndpoint string            `mapstructure:"grpc_endpoint"`
	HTTPEndpoint string            `mapstructure:"http_endpoint"`
	Headers      map[string]string `mapstructure:"headers"`
}

// ReferenceConfig points at a paginated ingredient nutrition API. The URL
// template expands {page} (1-based) and {page_size}; TotalCount sets how many
// pages are requested.
type ReferenceConfig struct {
	Source      string            `mapstructure:"source"`
	URLTemplate string            `mapstructure:"url_template"`
	PageSize    int               `mapstructure:"page_size"`
	TotalCount  int               `mapstructure:"total_count"`
	FetchMode   string            `mapstructure:"fetch_mode"`
	Headers     map[string]string `mapstructure:"headers"`
}

// Enabled reports whether a reference API is configured.
func (r ReferenceConfig) Enabled() bool { return r.URLTemplate != "" }

// SourceConfig describes one recipe site.
type SourceConfig struct {
	Extractor      string            `mapstructure:"extractor"`
	AddressKind    string            `mapstructure:"address_kind"`
	FetchMode      string            `mapstructure:"fetch_mode"`
	APIURLTemplate string            `mapstructure:"api_url_template"`
	Headers        map[string]string `mapstructure:"headers"`
	ExcludedURLs   []string          `mapstructure:"excluded_urls"`
	Selectors      SelectorRules     `mapstructure:"selectors"`
}

// SelectorRules are CSS selectors used by the selector extractor.
type SelectorRules struct {
	Name         string `mapstructure:"name"`
	Image        string `mapstructure:"image"`
	ImageAttr    string `mapstructure:"image_attr"`
	Yield        string `mapstructure:"yield"`
	PrepTime     string `mapstructure:"prep_time"`
	CookTime     string `mapstructure:"cook_time"`
	TotalTime    string `mapstructure:"total_time"`
	Ingredients  string `mapstructure:"ingredients"`
	Instructions string `mapstructure:"instructions"`
	Tips         string `mapstructure:"tips"`

	// Sub-selectors evaluated inside each ingredient node. Quantity holds a
	// combined value such as "2큰술" that is split into amount and unit.
	IngredientName     string `mapstructure:"ingredient_name"`
	IngredientAmount   string `mapstructure:"ingredient_amount"`
	IngredientUnit     string `mapstructure:"ingredient_unit"`
	IngredientQuantity string `mapstructure:"ingredient_quantity"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applySourceDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.batch_size", 10)
	v.SetDefault("harvest.persist_chunk_size", 100)
	v.SetDefault("harvest.pending_only", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agents", DefaultUserAgents)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_per_second", 0)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promote_threshold", 2048)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "documents")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("reference.source", "ingredient_reference")
	v.SetDefault("reference.page_size", 500)
	v.SetDefault("reference.fetch_mode", FetchModeHTTP)
}

// DefaultUserAgents is the desktop browser pool the HTTP fetcher rotates through.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

func (c *Config) applySourceDefaults() {
	for name, src := range c.Sources {
		if src.AddressKind == "" {
			src.AddressKind = "url"
		}
		if src.FetchMode == "" {
			src.FetchMode = FetchModeHTTP
		}
		if src.Selectors.ImageAttr == "" {
			src.Selectors.ImageAttr = "src"
		}
		c.Sources[name] = src
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest.batch_size must be > 0")
	}
	if c.Harvest.PersistChunkSize <= 0 {
		return fmt.Errorf("harvest.persist_chunk_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if len(c.HTTP.UserAgents) == 0 {
		return fmt.Errorf("http.user_agents must not be empty")
	}
	if c.HTTP.RatePerSecond < 0 {
		return fmt.Errorf("http.rate_per_second must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must be <= db.max_conns")
	}
	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if err := c.Reference.validate(c.Headless.Enabled); err != nil {
		return err
	}
	for _, name := range c.SourceNames() {
		if err := c.Sources[name].validate(name, c.Headless.Enabled); err != nil {
			return err
		}
	}
	return nil
}

func (r ReferenceConfig) validate(headlessEnabled bool) error {
	if !r.Enabled() {
		return nil
	}
	if !strings.Contains(r.URLTemplate, "{page}") {
		return fmt.Errorf("reference.url_template must contain {page}")
	}
	if r.Source == "" {
		return fmt.Errorf("reference.source must be set")
	}
	if r.PageSize <= 0 || r.TotalCount <= 0 {
		return fmt.Errorf("reference.page_size and reference.total_count must be > 0")
	}
	return validateFetchMode("reference.fetch_mode", r.FetchMode, headlessEnabled)
}

func validateFetchMode(key, mode string, headlessEnabled bool) error {
	switch mode {
	case FetchModeHTTP, "":
	case FetchModeHeadless, FetchModeAuto:
		if !headlessEnabled {
			return fmt.Errorf("%s %s requires headless.enabled", key, mode)
		}
	default:
		return fmt.Errorf("%s %q is not supported", key, mode)
	}
	return nil
}

func (s SourceConfig) validate(name string, headlessEnabled bool) error {
	switch s.Extractor {
	case ExtractorJSONLD, ExtractorMVCreate:
	case ExtractorSelector:
		if s.Selectors.Name == "" || s.Selectors.Ingredients == "" || s.Selectors.Instructions == "" {
			return fmt.Errorf("sources.%s.selectors needs name, ingredients and instructions", name)
		}
	default:
		return fmt.Errorf("sources.%s.extractor %q is not supported", name, s.Extractor)
	}
	switch s.AddressKind {
	case "url", "":
	case "post_id":
		if !strings.Contains(s.APIURLTemplate, "{id}") {
			return fmt.Errorf("sources.%s.api_url_template must contain {id} for post_id addresses", name)
		}
	default:
		return fmt.Errorf("sources.%s.address_kind %q is not supported", name, s.AddressKind)
	}
	return validateFetchMode("sources."+name+".fetch_mode", s.FetchMode, headlessEnabled)
}

// SourceNames returns the configured source tags in sorted order.
func (c Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
