// Package config loads the mailtasks configuration snapshot.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TaskService selects the task backend.
type TaskService string

const (
	GoogleTasks TaskService = "Google Tasks"
	Todoist     TaskService = "Todoist"
)

// ErrUnknownTaskService is returned for an unrecognized task_service value.
var ErrUnknownTaskService = errors.New("unknown task service")

// ParseTaskService normalizes a task_service value. Case, spaces and
// underscores are ignored, so "google_tasks" and "Google Tasks" are equal.
func ParseTaskService(s string) (TaskService, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	switch norm {
	case "googletasks":
		return GoogleTasks, nil
	case "todoist":
		return Todoist, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskService, s)
}

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// MaxThreadsLimit caps max_threads.
const MaxThreadsLimit = 100

// Config is an immutable snapshot for one processing run.
type Config struct {
	UnprocessedLabel      string `mapstructure:"unprocessed_label" yaml:"unprocessed_label"`
	ProcessedLabel        string `mapstructure:"processed_label" yaml:"processed_label"`
	ProcessingFailedLabel string `mapstructure:"processing_failed_label" yaml:"processing_failed_label"`

	ProcessingFrequencyMinutes int `mapstructure:"processing_frequency_in_minutes" yaml:"processing_frequency_in_minutes"`
	MaxThreads                 int `mapstructure:"max_threads" yaml:"max_threads"`

	TaskService         string `mapstructure:"task_service" yaml:"task_service"`
	DefaultTaskListName string `mapstructure:"default_task_list_name" yaml:"default_task_list_name"`
	TodoistAPIKey       string `mapstructure:"todoist_api_key" yaml:"todoist_api_key"`
	TodoistProjectID    string `mapstructure:"todoist_project_id" yaml:"todoist_project_id"`

	AIProvider   string `mapstructure:"ai_provider" yaml:"ai_provider"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model" yaml:"gemini_model"`
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model" yaml:"openai_model"`
	ContextFile  string `mapstructure:"context_file" yaml:"context_file"`
	ReopenCheck  bool   `mapstructure:"reopen_check" yaml:"reopen_check"`

	CredentialsPath string        `mapstructure:"credentials_path" yaml:"credentials_path"`
	DBPath          string        `mapstructure:"db_path" yaml:"db_path"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	LockLease       time.Duration `mapstructure:"lock_lease" yaml:"lock_lease"`

	NotifyOnFailure bool   `mapstructure:"notify_on_failure" yaml:"notify_on_failure"`
	ServerAddr      string `mapstructure:"server_addr" yaml:"server_addr"`
}

// Service returns the parsed task service selector.
func (c *Config) Service() (TaskService, error) {
	return ParseTaskService(c.TaskService)
}

// DefaultDir returns ~/.mailtasks.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailtasks"
	}
	return filepath.Join(home, ".mailtasks")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("unprocessed_label", "unprocessed")
	v.SetDefault("processed_label", "processed")
	v.SetDefault("processing_failed_label", "error")
	v.SetDefault("processing_frequency_in_minutes", 5)
	v.SetDefault("max_threads", 50)
	v.SetDefault("task_service", string(GoogleTasks))
	v.SetDefault("default_task_list_name", "My Tasks")
	v.SetDefault("todoist_api_key", "")
	v.SetDefault("todoist_project_id", "")
	v.SetDefault("ai_provider", ProviderGemini)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4.1-mini")
	v.SetDefault("context_file", filepath.Join(dir, "context.yaml"))
	v.SetDefault("reopen_check", true)
	v.SetDefault("credentials_path", filepath.Join(dir, "credentials.json"))
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "mailtasks.db"))
	v.SetDefault("lock_timeout", "10s")
	v.SetDefault("lock_lease", "30m")
	v.SetDefault("notify_on_failure", false)
	v.SetDefault("server_addr", "127.0.0.1:8765")
}

// Load reads configuration from the YAML file at path, then applies
// MAILTASKS_* environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILTASKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, filepath.Dir(path))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.CredentialsPath = expandHome(cfg.CredentialsPath)
	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.ContextFile = expandHome(cfg.ContextFile)
	return cfg, nil
}

// Validate reports configuration errors that must stop a run before any
// thread is touched.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UnprocessedLabel) == "" {
		return errors.New("unprocessed_label can't be empty")
	}
	if c.MaxThreads < 1 || c.MaxThreads > MaxThreadsLimit {
		return fmt.Errorf("max_threads must be between 1 and %d, got %d", MaxThreadsLimit, c.MaxThreads)
	}
	svc, err := c.Service()
	if err != nil {
		return err
	}
	if svc == Todoist && c.TodoistAPIKey == "" {
		return errors.New("todoist_api_key is required when task_service is Todoist")
	}
	if svc == GoogleTasks && c.DefaultTaskListName == "" {
		return errors.New("default_task_list_name can't be empty")
	}
	switch c.AIProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("gemini_api_key is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("openai_api_key is required")
		}
	default:
		return fmt.Errorf("unknown ai_provider %q (must be: gemini, openai)", c.AIProvider)
	}
	if c.LockTimeout <= 0 {
		return errors.New("lock_timeout must be positive")
	}
	return nil
}

// Secret names used by ResolveSecrets and the keyring.
const (
	SecretGemini  = "gemini_api_key"
	SecretOpenAI  = "openai_api_key"
	SecretTodoist = "todoist_api_key"
)

// ResolveSecrets fills empty API keys using lookup, typically the OS keyring.
// Lookup failures leave the key empty; Validate reports what is missing.
func (c *Config) ResolveSecrets(lookup func(name string) (string, error)) {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, err := lookup(name); err == nil {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&c.GeminiAPIKey, SecretGemini)
	fill(&c.OpenAIAPIKey, SecretOpenAI)
	fill(&c.TodoistAPIKey, SecretTodoist)
}

// Template is the file written by `mt init`.
const Template = `# mailtasks configuration
unprocessed_label: unprocessed
processed_label: processed
processing_failed_label: error
processing_frequency_in_minutes: 5
max_threads: 50

# "Google Tasks" or "Todoist"
task_service: Google Tasks
default_task_list_name: My Tasks
todoist_project_id: ""

# "gemini" or "openai"; keys may also live in the keyring (mt auth set-key)
ai_provider: gemini
gemini_model: gemini-2.5-flash
reopen_check: true

notify_on_failure: false
`

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
