// Package config loads the mailsift application configuration.
//
// Settings come from a YAML file read with viper, overridden by MAILSIFT_
// environment variables (MAILSIFT_MAILBOX_PASSWORD sets mailbox.password).
// Passwords left empty are looked up in the OS keyring.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/ingestion"
	"github.com/poiesic/mailsift/mailbox/imap"
	"github.com/poiesic/mailsift/notify"
	"github.com/poiesic/mailsift/search"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAILSIFT"

// Channel names accepted by notify.channel.
const (
	ChannelSMTP = "smtp"
	ChannelLog  = "log"
)

// MailboxConfig holds the IMAP source settings.
type MailboxConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         string        `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	TLS          bool          `mapstructure:"tls" yaml:"tls"`
	Folders      []string      `mapstructure:"folders" yaml:"folders"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	MarkSeen     bool          `mapstructure:"mark_seen" yaml:"mark_seen"`
	MaxPerFetch  int           `mapstructure:"max_per_fetch" yaml:"max_per_fetch"`
}

// AIConfig holds the model gateway settings.
type AIConfig struct {
	EmbeddingHost   string        `mapstructure:"embedding_host" yaml:"embedding_host"`
	CompletionHost  string        `mapstructure:"completion_host" yaml:"completion_host"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	EmbeddingModel  string        `mapstructure:"embedding_model" yaml:"embedding_model"`
	SummaryModel    string        `mapstructure:"summary_model" yaml:"summary_model"`
	ClassifierModel string        `mapstructure:"classifier_model" yaml:"classifier_model"`
	AnswerModel     string        `mapstructure:"answer_model" yaml:"answer_model"`
	CallTimeout     time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// Dimension fixes the embedding size; 0 adopts it from the first vector.
	Dimension int `mapstructure:"dimension" yaml:"dimension"`
}

// PipelineConfig holds the processing pipeline settings.
type PipelineConfig struct {
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	MaxInputChars   int           `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	StaleAfter      time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SMTPConfig holds the outgoing mail settings for notifications.
type SMTPConfig struct {
	Host     string   `mapstructure:"host" yaml:"host"`
	Port     string   `mapstructure:"port" yaml:"port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from" yaml:"from"`
	To       []string `mapstructure:"to" yaml:"to"`
	TLS      bool     `mapstructure:"tls" yaml:"tls"`
}

// NotifyConfig holds the notification dispatcher settings.
type NotifyConfig struct {
	// Channel is "smtp" or "log".
	Channel         string        `mapstructure:"channel" yaml:"channel"`
	SMTP            SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" yaml:"delivery_timeout"`
	Alerts          bool          `mapstructure:"alerts" yaml:"alerts"`
	Digest          bool          `mapstructure:"digest" yaml:"digest"`
}

// SearchConfig holds the retrieval settings.
type SearchConfig struct {
	DefaultK        int `mapstructure:"default_k" yaml:"default_k"`
	MaxContextChars int `mapstructure:"max_context_chars" yaml:"max_context_chars"`
}

// Config is the top-level application configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
}

// DefaultPath returns ~/.config/mailsift/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsift", "config.yaml")
}

// DefaultDataDir returns ~/.local/share/mailsift.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailsift-data")
	}
	return filepath.Join(home, ".local", "share", "mailsift")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	notifyDefaults := notify.DefaultConfig()
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Mailbox: MailboxConfig{
			Port:         "993",
			TLS:          true,
			Folders:      []string{"INBOX"},
			PollInterval: ingestion.DefaultPollInterval,
			MaxBackoff:   ingestion.DefaultMaxBackoff,
			MaxPerFetch:  imap.DefaultMaxPerFetch,
		},
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			CompletionHost:  aiDefaults.CompletionHost,
			APIKey:          aiDefaults.APIKey,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			SummaryModel:    aiDefaults.SummaryModel,
			ClassifierModel: aiDefaults.ClassifierModel,
			AnswerModel:     aiDefaults.AnswerModel,
			CallTimeout:     aiDefaults.CallTimeout,
			MaxAttempts:     aiDefaults.MaxAttempts,
			BaseDelay:       aiDefaults.BaseDelay,
			MaxDelay:        aiDefaults.MaxDelay,
		},
		Pipeline: PipelineConfig{
			Workers:         max(runtime.NumCPU()/2, 1),
			MaxInputChars:   ingestion.DefaultMaxInputChars,
			StaleAfter:      ingestion.DefaultStaleAfter,
			ShutdownTimeout: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Channel:         ChannelLog,
			SMTP:            SMTPConfig{Port: "587"},
			MaxAttempts:     notifyDefaults.MaxAttempts,
			BaseDelay:       notifyDefaults.BaseDelay,
			MaxDelay:        notifyDefaults.MaxDelay,
			SweepInterval:   notifyDefaults.SweepInterval,
			DeliveryTimeout: notifyDefaults.DeliveryTimeout,
			Alerts:          notifyDefaults.Alerts,
			Digest:          notifyDefaults.Digest,
		},
		Search: SearchConfig{
			DefaultK:        search.DefaultK,
			MaxContextChars: search.DefaultMaxContextChars,
		},
	}
}

// Load reads the configuration at path, layered over Default and under
// MAILSIFT_ environment overrides. A missing file is not an error.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	// Reading the defaults as a config registers every key, which lets
	// AutomaticEnv override keys the file does not mention.
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
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
	return cfg, nil
}

// Write saves cfg as YAML at path, creating parent directories. An existing
// file is only replaced when overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if len(c.Mailbox.Folders) == 0 {
		return errors.New("config: mailbox.folders must name at least one folder")
	}
	switch c.Notify.Channel {
	case ChannelLog:
	case ChannelSMTP:
		if c.Notify.SMTP.Host == "" {
			return errors.New("config: notify.smtp.host is required for the smtp channel")
		}
	default:
		return fmt.Errorf("config: unknown notify.channel %q", c.Notify.Channel)
	}
	if c.AI.Dimension < 0 {
		return errors.New("config: ai.dimension must not be negative")
	}
	return c.NotifyConfig().Validate()
}

// IndexPath is the vector index file under DataDir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// RecordsPath is the record store directory under DataDir.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.DataDir, "records")
}

// AIConfig converts the gateway settings.
func (c *Config) AIConfig() *ai.Config {
	cfg := &ai.Config{
		EmbeddingHost:   c.AI.EmbeddingHost,
		CompletionHost:  c.AI.CompletionHost,
		APIKey:          c.AI.APIKey,
		EmbeddingModel:  c.AI.EmbeddingModel,
		SummaryModel:    c.AI.SummaryModel,
		ClassifierModel: c.AI.ClassifierModel,
		AnswerModel:     c.AI.AnswerModel,
		CallTimeout:     c.AI.CallTimeout,
		MaxAttempts:     c.AI.MaxAttempts,
		BaseDelay:       c.AI.BaseDelay,
		MaxDelay:        c.AI.MaxDelay,
	}
	cfg.Normalize()
	return cfg
}

// NotifyConfig converts the dispatcher settings.
func (c *Config) NotifyConfig() *notify.Config {
	cfg := notify.DefaultConfig()
	cfg.MaxAttempts = c.Notify.MaxAttempts
	cfg.BaseDelay = c.Notify.BaseDelay
	cfg.MaxDelay = c.Notify.MaxDelay
	cfg.SweepInterval = c.Notify.SweepInterval
	cfg.DeliveryTimeout = c.Notify.DeliveryTimeout
	cfg.Alerts = c.Notify.Alerts
	cfg.Digest = c.Notify.Digest
	return cfg
}

// IMAPConfig converts the mailbox settings.
func (c *Config) IMAPConfig() imap.Config {
	return imap.Config{
		Host:        c.Mailbox.Host,
		Port:        c.Mailbox.Port,
		Username:    c.Mailbox.Username,
		Password:    c.Mailbox.Password,
		TLS:         c.Mailbox.TLS,
		MaxPerFetch: c.Mailbox.MaxPerFetch,
	}
}

// SMTPConfig converts the notification mail settings.
func (c *Config) SMTPConfig() notify.SMTPConfig {
	s := c.Notify.SMTP
	return notify.SMTPConfig{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		To:       s.To,
		TLS:      s.TLS,
	}
}
