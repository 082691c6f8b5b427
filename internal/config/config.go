// Package config loads and validates the collecte configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"info-collecte/internal/scraper"
)

// ErrInvalid marks configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting of a collecte run.
type Config struct {
	Address      string        `mapstructure:"address" validate:"required"`
	SiteURL      string        `mapstructure:"site_url" validate:"required,url"`
	FetchMode    string        `mapstructure:"fetch_mode" validate:"oneof=chrome static"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ChromePath   string        `mapstructure:"chrome_path"`
	CacheDir     string        `mapstructure:"cache_dir"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	ICSPath      string        `mapstructure:"ics_path"`

	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	State   StateConfig   `mapstructure:"state"`
	Archive ArchiveConfig `mapstructure:"archive"`

	Categories []scraper.Rule `mapstructure:"categories" validate:"dive"`
}

// MQTTConfig configures the publish transport.
type MQTTConfig struct {
	Host      string `mapstructure:"host" validate:"required"`
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	ClientID  string `mapstructure:"client_id"`
	TopicBase string `mapstructure:"topic_base" validate:"required"`
}

// RemoteConfig configures the remote calendar service. Either all of URL,
// Token and CalendarID are set or none.
type RemoteConfig struct {
	URL        string        `mapstructure:"url" validate:"omitempty,url"`
	Token      string        `mapstructure:"token"`
	CalendarID string        `mapstructure:"calendar_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the remote calendar service is configured.
func (r RemoteConfig) Enabled() bool {
	return r.URL != "" && r.Token != "" && r.CalendarID != ""
}

func (r RemoteConfig) partial() bool {
	set := 0
	for _, s := range []string{r.URL, r.Token, r.CalendarID} {
		if s != "" {
			set++
		}
	}
	return set != 0 && set != 3
}

// StateConfig locates the persisted dedup record. A non-empty Bucket selects
// Google Cloud Storage, otherwise Dir on local disk.
type StateConfig struct {
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Key    string `mapstructure:"key" validate:"required"`
}

// ArchiveConfig configures the optional Firestore archive.
type ArchiveConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.ProjectID != ""
}

// Load unmarshals the configuration held by v and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	var problems []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validate config")
		}
		for _, e := range verrs {
			problems = append(problems, fmt.Sprintf("%s %s", e.Namespace(), formatValidationError(e)))
		}
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "Config.FetchTimeout must be positive")
	}
	if c.CacheTTL < 0 {
		problems = append(problems, "Config.CacheTTL must not be negative")
	}
	if c.Remote.partial() {
		problems = append(problems, "Config.Remote requires url, token and calendar_id together")
	}
	if c.State.Dir == "" && c.State.Bucket == "" {
		problems = append(problems, "Config.State needs a dir or a bucket")
	}
	if c.Archive.Enabled() && c.Archive.Collection == "" {
		problems = append(problems, "Config.Archive.Collection is required with project_id")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Mark(errors.Newf("%s", strings.Join(problems, "; ")), ErrInvalid)
}

// ParseRules reads an ordered list of classifier rules from YAML.
func ParseRules(data []byte) ([]scraper.Rule, error) {
	var rules []scraper.Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, errors.Wrap(err, "parse category rules")
	}
	v := validator.New()
	for i, r := range rules {
		if err := v.Struct(r); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "category rule %d", i), ErrInvalid)
		}
	}
	return rules, nil
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
