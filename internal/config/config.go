// Package config loads wend's layered configuration: struct defaults, then
// an optional YAML file, then WEND_* environment overrides, validated last.
// Durations are strings ("500ms", "2m") so every layer can express them the
// same way; they are checked at load time and parsed through the accessors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// duration validates time.ParseDuration literals.
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})

	// cronexpr validates against the same parser the scheduler runs,
	// so a spec that loads is a spec that fires.
	_ = validate.RegisterValidation("cronexpr", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
}

// Config holds all wend configuration.
// Priority: env vars > config.yaml > defaults.
type Config struct {
	Dirs      Dirs       `yaml:"dirs"`
	Store     Store      `yaml:"store"`
	Engine    Engine     `yaml:"engine"`
	Shell     Shell      `yaml:"shell"`
	Logging   Logging    `yaml:"logging"`
	Pool      Pool       `yaml:"pool"`
	Schedules []Schedule `yaml:"schedules" validate:"dive"`
}

// Dirs locates the on-disk inputs. Empty fields resolve under the wend home
// directory at load time.
type Dirs struct {
	Workflows string `yaml:"workflows"`
	Prompts   string `yaml:"prompts"`
	Signals   string `yaml:"signals"`
}

// Store selects and locates the run archive.
type Store struct {
	Driver string `yaml:"driver" default:"libsql" validate:"oneof=libsql memory"`
	Path   string `yaml:"path"`
}

// Engine bounds run execution.
type Engine struct {
	MaxVisits      int    `yaml:"max_visits" default:"100" validate:"min=1"`
	MaxRetries     int    `yaml:"max_retries" default:"3" validate:"min=0"`
	RetryBaseDelay string `yaml:"retry_base_delay" default:"500ms" validate:"duration"`
	RetryMaxDelay  string `yaml:"retry_max_delay" default:"30s" validate:"duration"`
	MaxDepth       int    `yaml:"max_depth" default:"8" validate:"min=1"`
	PollInterval   string `yaml:"poll_interval" default:"250ms" validate:"duration"`
}

// BaseDelay returns the parsed retry base delay. The literal was validated
// at load, so parsing cannot fail here.
func (e Engine) BaseDelay() time.Duration { return mustDuration(e.RetryBaseDelay) }

// MaxDelay returns the parsed retry delay cap.
func (e Engine) MaxDelay() time.Duration { return mustDuration(e.RetryMaxDelay) }

// Poll returns the parsed signal poll interval.
func (e Engine) Poll() time.Duration { return mustDuration(e.PollInterval) }

// Shell constrains command execution.
type Shell struct {
	DenyPatterns     []string `yaml:"deny_patterns"`
	AllowedRoots     []string `yaml:"allowed_roots"`
	DefaultTimeout   string   `yaml:"default_timeout" default:"30s" validate:"duration"`
	MaxTimeout       string   `yaml:"max_timeout" default:"10m" validate:"duration"`
	GracePeriod      string   `yaml:"grace_period" default:"5s" validate:"duration"`
	MaxOutputSize    int64    `yaml:"max_output_size" default:"10485760" validate:"min=1"`
	MaxCommandLength int      `yaml:"max_command_length" default:"4096" validate:"min=1"`
}

// Timeout returns the parsed default command timeout.
func (s Shell) Timeout() time.Duration { return mustDuration(s.DefaultTimeout) }

// TimeoutCap returns the parsed ceiling on phrase-requested timeouts.
func (s Shell) TimeoutCap() time.Duration { return mustDuration(s.MaxTimeout) }

// Grace returns the parsed SIGTERM-to-SIGKILL grace period.
func (s Shell) Grace() time.Duration { return mustDuration(s.GracePeriod) }

// Logging selects the process log handler.
type Logging struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// Pool bounds concurrent runs in serve mode.
type Pool struct {
	Size int `yaml:"size" default:"4" validate:"min=1"`
}

// Schedule declares a cron-triggered run.
type Schedule struct {
	Workflow string         `yaml:"workflow" validate:"required"`
	Cron     string         `yaml:"cron" validate:"required,cronexpr"`
	Vars     map[string]any `yaml:"vars"`
}

// Dir returns the wend home directory: WEND_HOME if set, else ~/.wend.
func Dir() string {
	if v := os.Getenv("WEND_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wend"
	}
	return filepath.Join(home, ".wend")
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load builds the effective configuration. A missing file at the default
// path falls back to defaults and environment; a missing file at an explicit
// path is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	explicit := path != ""
	resolved := path
	if !explicit {
		resolved = DefaultPath()
	}
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file; defaults and environment carry the run.
	default:
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}

	applyEnv(cfg)
	fillPaths(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}
	return cfg, nil
}

// applyEnv overlays WEND_* environment variables onto the loaded values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WEND_WORKFLOWS_DIR"); v != "" {
		cfg.Dirs.Workflows = v
	}
	if v := os.Getenv("WEND_PROMPTS_DIR"); v != "" {
		cfg.Dirs.Prompts = v
	}
	if v := os.Getenv("WEND_SIGNALS_DIR"); v != "" {
		cfg.Dirs.Signals = v
	}
	if v := os.Getenv("WEND_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("WEND_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("WEND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WEND_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WEND_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("WEND_SHELL_TIMEOUT"); v != "" {
		cfg.Shell.DefaultTimeout = v
	}
}

// fillPaths resolves empty locations under the wend home directory.
func fillPaths(cfg *Config) {
	if cfg.Dirs.Workflows == "" {
		cfg.Dirs.Workflows = filepath.Join(Dir(), "workflows")
	}
	if cfg.Dirs.Prompts == "" {
		cfg.Dirs.Prompts = filepath.Join(Dir(), "prompts")
	}
	if cfg.Dirs.Signals == "" {
		cfg.Dirs.Signals = filepath.Join(Dir(), "signals")
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(Dir(), "wend.db")
	}
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed rule %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
