package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultFloor          = 1000
	DefaultRecentWindow   = 5
	DefaultBatchSize      = 50
	DefaultProbeTimeout   = 10 * time.Second
	DefaultInterval       = 30 * time.Minute
	DefaultArchiveExt     = ".zip"
	DefaultLogExt         = ".log.gz"
	DefaultPathTemplate   = "{host}/{ecosystem}/{revision}/{blob}{ext}"
	DefaultBuildNumber    = "browser_patches/{ecosystem}/BUILD_NUMBER"
	DefaultStorePath      = "./data"
	DefaultStoreBranch    = "cdn-status-data"
	DefaultUpstreamRef    = "main"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultUserAgent      = "buildwatch"
	DefaultUpstreamGitDir = "./upstream"
)

// Config is the top-level buildwatch configuration.
type Config struct {
	Poller     PollerConfig   `yaml:"poller"`
	Ecosystems []Ecosystem    `yaml:"ecosystems"`
	Upstream   UpstreamConfig `yaml:"upstream"`
	Store      StoreConfig    `yaml:"store"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// PollerConfig controls how much work a single run does.
type PollerConfig struct {
	// Floor is the oldest revision ever tracked. Ecosystems may override it.
	Floor int `yaml:"floor"`

	// RecentWindow is how many of the newest revisions are re-probed on every
	// run, even when already present in the ledger.
	RecentWindow int `yaml:"recent_window"`

	// BatchSize caps the number of revisions probed per ecosystem per run.
	// Zero or negative means unbounded.
	BatchSize int `yaml:"batch_size"`

	// ProbeTimeout bounds every HEAD request.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ProbeConcurrency limits in-flight probes for one revision.
	// Zero means all candidate URLs are probed at once.
	ProbeConcurrency int `yaml:"probe_concurrency"`

	// Interval is the run period used by `buildwatch watch`.
	Interval time.Duration `yaml:"interval"`

	// UserAgent is sent with every probe.
	UserAgent string `yaml:"user_agent"`
}

// Ecosystem describes one tracked artifact family.
type Ecosystem struct {
	// Name identifies the ecosystem in URLs, ledgers and metrics.
	Name string `yaml:"name"`

	// Host is the CDN base URL, without a trailing slash.
	Host string `yaml:"host"`

	// Blobs is the fixed list of artifact names published per revision.
	Blobs []string `yaml:"blobs"`

	ArchiveExt   string `yaml:"archive_ext"`
	LogExt       string `yaml:"log_ext"`
	PathTemplate string `yaml:"path_template"`

	// Floor overrides poller.floor for this ecosystem when positive.
	Floor int `yaml:"floor"`

	// BuildNumberPath overrides upstream.build_number_path for this ecosystem.
	BuildNumberPath string `yaml:"build_number_path"`
}

// UpstreamConfig locates the build-number file holding each ecosystem's
// current revision.
type UpstreamConfig struct {
	// Type is one of: file | http | git.
	Type string `yaml:"type"`

	// Path is the checkout root for Type "file".
	Path string `yaml:"path"`

	// URL is a template with an {ecosystem} placeholder for Type "http".
	URL string `yaml:"url"`

	// Repo, Ref and Dir describe the upstream clone for Type "git".
	Repo string `yaml:"repo"`
	Ref  string `yaml:"ref"`
	Dir  string `yaml:"dir"`

	// BuildNumberPath is relative to the checkout root and may contain
	// {ecosystem}.
	BuildNumberPath string `yaml:"build_number_path"`
}

// StoreConfig selects the ledger persistence backend.
type StoreConfig struct {
	// Backend is one of: file | git | leveldb | memory.
	Backend string `yaml:"backend"`

	// Path is the ledger directory (file, git) or database path (leveldb).
	Path string `yaml:"path"`

	// Git backend fields.
	Repo        string `yaml:"repo"`
	Branch      string `yaml:"branch"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`

	// TokenEnv is the name of the environment variable holding a push token.
	TokenEnv string `yaml:"token_env"`
}

// Token returns the push token resolved from the environment.
// Returns empty string if TokenEnv is unset or the variable is not found.
func (s StoreConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// MetricsConfig controls where run metrics are exported.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics of every run in Prometheus
	// text format (node_exporter textfile collector layout).
	Textfile string `yaml:"textfile"`

	// Listen, when set, serves /metrics and /healthz in watch mode.
	Listen string `yaml:"listen"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// EcosystemFloor returns the effective floor for eco.
func (c *Config) EcosystemFloor(eco Ecosystem) int {
	if eco.Floor > 0 {
		return eco.Floor
	}
	return c.Poller.Floor
}

// Lookup returns the ecosystem named name.
func (c *Config) Lookup(name string) (Ecosystem, bool) {
	for _, e := range c.Ecosystems {
		if e.Name == name {
			return e, true
		}
	}
	return Ecosystem{}, false
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config content.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	fill(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Poller: PollerConfig{
			Floor:        DefaultFloor,
			RecentWindow: DefaultRecentWindow,
			BatchSize:    DefaultBatchSize,
			ProbeTimeout: DefaultProbeTimeout,
			Interval:     DefaultInterval,
			UserAgent:    DefaultUserAgent,
		},
		Upstream: UpstreamConfig{
			Type:            "file",
			Ref:             DefaultUpstreamRef,
			Dir:             DefaultUpstreamGitDir,
			BuildNumberPath: DefaultBuildNumber,
		},
		Store: StoreConfig{
			Backend:     "file",
			Path:        DefaultStorePath,
			Branch:      DefaultStoreBranch,
			AuthorName:  "buildwatch",
			AuthorEmail: "buildwatch@localhost",
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// fill applies per-ecosystem defaults that cannot be expressed in defaults()
// because list elements are created by the decoder.
func fill(cfg *Config) {
	for i := range cfg.Ecosystems {
		e := &cfg.Ecosystems[i]
		e.Host = strings.TrimRight(e.Host, "/")
		if e.ArchiveExt == "" {
			e.ArchiveExt = DefaultArchiveExt
		}
		if e.LogExt == "" {
			e.LogExt = DefaultLogExt
		}
		if e.PathTemplate == "" {
			e.PathTemplate = DefaultPathTemplate
		}
		if e.BuildNumberPath == "" {
			e.BuildNumberPath = cfg.Upstream.BuildNumberPath
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Poller.Floor < 0 {
		return fmt.Errorf("poller.floor must not be negative")
	}
	if cfg.Poller.RecentWindow < 0 {
		return fmt.Errorf("poller.recent_window must not be negative")
	}
	if cfg.Poller.ProbeTimeout <= 0 {
		return fmt.Errorf("poller.probe_timeout must be positive")
	}
	if cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if len(cfg.Ecosystems) == 0 {
		return fmt.Errorf("at least one ecosystem is required")
	}

	seen := make(map[string]bool, len(cfg.Ecosystems))
	for i, e := range cfg.Ecosystems {
		if e.Name == "" {
			return fmt.Errorf("ecosystems[%d]: name is required", i)
		}
		if e.Name == "version" || e.Name == "timestamp" {
			return fmt.Errorf("ecosystems[%d]: name %q is reserved", i, e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("ecosystems[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if e.Host == "" {
			return fmt.Errorf("ecosystems[%d] %q: host is required", i, e.Name)
		}
		if len(e.Blobs) == 0 {
			return fmt.Errorf("ecosystems[%d] %q: at least one blob is required", i, e.Name)
		}
		if !strings.Contains(e.PathTemplate, "{revision}") {
			return fmt.Errorf("ecosystems[%d] %q: path_template must contain {revision}", i, e.Name)
		}
		if e.ArchiveExt == e.LogExt {
			return fmt.Errorf("ecosystems[%d] %q: archive_ext and log_ext must differ", i, e.Name)
		}
	}

	switch cfg.Upstream.Type {
	case "file":
		if cfg.Upstream.Path == "" {
			return fmt.Errorf("upstream.path is required for type file")
		}
	case "http":
		if !strings.Contains(cfg.Upstream.URL, "{ecosystem}") {
			return fmt.Errorf("upstream.url must contain {ecosystem} for type http")
		}
	case "git":
		if cfg.Upstream.Repo == "" {
			return fmt.Errorf("upstream.repo is required for type git")
		}
	default:
		return fmt.Errorf("upstream: unknown type %q", cfg.Upstream.Type)
	}

	switch cfg.Store.Backend {
	case "file", "leveldb":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for backend %s", cfg.Store.Backend)
		}
	case "git":
		if cfg.Store.Repo == "" || cfg.Store.Branch == "" {
			return fmt.Errorf("store.repo and store.branch are required for backend git")
		}
	case "memory":
	default:
		return fmt.Errorf("store: unknown backend %q", cfg.Store.Backend)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Logging.Format)
	}
	return nil
}
