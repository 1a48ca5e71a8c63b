package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "500ms" or "2h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Watcher modes.
const (
	WatchModePoll     = "poll"
	WatchModeFsnotify = "fsnotify"
)

// Config represents the application configuration. It is built once at
// startup, validated, and passed to components; nothing mutates it afterwards.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Inference  InferenceConfig   `yaml:"inference"`
	Watcher    WatcherConfig     `yaml:"watcher"`
	Processing ProcessingConfig  `yaml:"processing"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Inference.Validate(); err != nil {
		return err
	}
	if err := c.Watcher.Validate(); err != nil {
		return err
	}
	return c.Processing.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the status HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the managed directory tree layout. Zone paths are
// relative to Path.
type VaultConfig struct {
	Path             string `yaml:"path"`
	ImportDir        string `yaml:"import_dir"`
	StorageDir       string `yaml:"storage_dir"`
	UncategorizedDir string `yaml:"uncategorized_dir"`
	DuplicatesDir    string `yaml:"duplicates_dir"`
	ErrorDir         string `yaml:"error_dir"`
	DraftsDir        string `yaml:"drafts_dir"`
	TemplatesDir     string `yaml:"templates_dir"`
	JournalDir       string `yaml:"journal_dir"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.ImportDir, validation.Required),
		validation.Field(&c.StorageDir, validation.Required),
		validation.Field(&c.UncategorizedDir, validation.Required),
		validation.Field(&c.DuplicatesDir, validation.Required),
		validation.Field(&c.ErrorDir, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InferenceConfig holds the language-model service configuration.
type InferenceConfig struct {
	BaseURL       string   `yaml:"base_url"`
	GenerateModel string   `yaml:"generate_model"`
	EmbedModel    string   `yaml:"embed_model"`
	Timeout       Duration `yaml:"timeout"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
}

// Validate validates the inference configuration.
func (c *InferenceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.GenerateModel, validation.Required),
		validation.Field(&c.EmbedModel, validation.Required),
		validation.Field(&c.RetryAttempts, validation.Min(1)),
	)
}

// WatcherConfig controls filesystem change detection.
//
// Mode selects the detection strategy:
//   - "poll" (default): periodic tree scans; correct over network mounts.
//   - "fsnotify": kernel events; lower latency on local disks.
type WatcherConfig struct {
	Mode           string   `yaml:"mode"`
	PollInterval   Duration `yaml:"poll_interval"`
	DebounceWindow Duration `yaml:"debounce_window"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = WatchModePoll
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(WatchModePoll, WatchModeFsnotify)),
		validation.Field(&c.PollInterval, validation.Required),
		validation.Field(&c.DebounceWindow, validation.Required),
	)
}

// ProcessingConfig holds pipeline tuning knobs.
type ProcessingConfig struct {
	WordDeltaThreshold  int      `yaml:"word_delta_threshold"`
	FuzzyTitleThreshold float64  `yaml:"fuzzy_title_threshold"`
	BlockWordLimit      int      `yaml:"block_word_limit"`
	Glossary            bool     `yaml:"glossary"`
	Questions           bool     `yaml:"questions"`
	LockPurgeTimeout    Duration `yaml:"lock_purge_timeout"`
}

// Validate validates the processing configuration.
func (c *ProcessingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WordDeltaThreshold, validation.Min(1)),
		validation.Field(&c.FuzzyTitleThreshold, validation.Min(0.5), validation.Max(1.0)),
		validation.Field(&c.BlockWordLimit, validation.Min(50)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8087,
			},
		},
		Vault: VaultConfig{
			Path:             "./vault",
			ImportDir:        "Inbox",
			StorageDir:       "Notes",
			UncategorizedDir: "Uncategorized",
			DuplicatesDir:    "Duplicates",
			ErrorDir:         "Errors",
			DraftsDir:        "Drafts",
			TemplatesDir:     "Templates",
			JournalDir:       ".journals",
		},
		SQLite: SQLiteConfig{
			Path: "./notarius.db",
		},
		Inference: InferenceConfig{
			BaseURL:       "http://localhost:11434",
			GenerateModel: "llama3.1",
			EmbedModel:    "nomic-embed-text",
			Timeout:       Duration(120 * time.Second),
			RetryAttempts: 3,
			RetryDelay:    Duration(2 * time.Second),
		},
		Watcher: WatcherConfig{
			Mode:           WatchModePoll,
			PollInterval:   Duration(2 * time.Second),
			DebounceWindow: Duration(500 * time.Millisecond),
		},
		Processing: ProcessingConfig{
			WordDeltaThreshold:  50,
			FuzzyTitleThreshold: 0.87,
			BlockWordLimit:      800,
			Glossary:            true,
			Questions:           false,
			LockPurgeTimeout:    Duration(2 * time.Hour),
		},
	}
}
