// Package config loads the switchboard configuration from a YAML file
// overlaid with SWITCHBOARD_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides. SWITCHBOARD_MODEL_PROVIDER
// sets model.provider; SWITCHBOARD_ENGINE_ATTEMPT_CEILING sets
// engine.attempt_ceiling. List values are comma separated.
const EnvPrefix = "SWITCHBOARD_"

// Config is the full application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Lock    LockConfig    `mapstructure:"lock" yaml:"lock"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

type EngineConfig struct {
	AttemptCeiling  int           `mapstructure:"attempt_ceiling" yaml:"attempt_ceiling" validate:"min=1"`
	LoopCeiling     int           `mapstructure:"loop_ceiling" yaml:"loop_ceiling" validate:"min=1"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout" yaml:"decision_timeout" validate:"gt=0"`
	FallbackReply   string        `mapstructure:"fallback_reply" yaml:"fallback_reply" validate:"required"`
	BreakerReply    string        `mapstructure:"breaker_reply" yaml:"breaker_reply" validate:"required"`
}

type ModelConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider" validate:"oneof=openai anthropic scripted"`
	Name        string  `mapstructure:"name" yaml:"name"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int64   `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=1"`
}

type StoreConfig struct {
	Kind          string        `mapstructure:"kind" yaml:"kind" validate:"oneof=memory file redis badger sqlite"`
	Path          string        `mapstructure:"path" yaml:"path"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Kind redis"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	Prefix        string        `mapstructure:"prefix" yaml:"prefix"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"min=0"`
	EncryptionKey string        `mapstructure:"encryption_key" yaml:"encryption_key" validate:"omitempty,aeskey"`
	Redact        []string      `mapstructure:"redact" yaml:"redact"`
}

type LockConfig struct {
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
}

type SearchConfig struct {
	Provider       string   `mapstructure:"provider" yaml:"provider" validate:"oneof=tavily none"`
	APIKey         string   `mapstructure:"api_key" yaml:"api_key" validate:"required_if=Provider tavily"`
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	MaxResults     int      `mapstructure:"max_results" yaml:"max_results" validate:"min=1,max=10"`
	ScoreThreshold float64  `mapstructure:"score_threshold" yaml:"score_threshold" validate:"min=0,max=1"`
	IncludeDomains []string `mapstructure:"include_domains" yaml:"include_domains"`
}

type HTTPConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr" validate:"required"`
	RatePerMinute int    `mapstructure:"rate_per_minute" yaml:"rate_per_minute" validate:"min=0"`
	Burst         int    `mapstructure:"burst" yaml:"burst" validate:"min=0"`
	MaxBodyBytes  int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"min=1"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			AttemptCeiling:  3,
			LoopCeiling:     8,
			DecisionTimeout: 30 * time.Second,
			FallbackReply:   "Processing complete.",
			BreakerReply:    "I'm having trouble right now, please try again.",
		},
		Model: ModelConfig{Provider: "scripted", Temperature: 0.2, MaxTokens: 1024},
		Store: StoreConfig{Kind: "memory"},
		Lock:  LockConfig{TTL: 30 * time.Second},
		Search: SearchConfig{
			Provider:       "none",
			MaxResults:     1,
			ScoreThreshold: 0.7,
		},
		HTTP: HTTPConfig{
			Addr:          ":8080",
			RatePerMinute: 30,
			Burst:         5,
			MaxBodyBytes:  16 * 1024,
		},
	}
}

// Load reads path (optional), applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	overlayEnv(raw, environ)

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// sections are the top level keys of Config.
var sections = configSections()

func configSections() map[string]bool {
	t := reflect.TypeOf(Config{})
	out := make(map[string]bool, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("mapstructure"), ",")
		out[name] = true
	}
	return out
}

// overlayEnv merges SWITCHBOARD_SECTION_KEY=value pairs into raw. Variables
// whose section is not part of Config, such as SWITCHBOARD_MAX_INPUT_SIZE,
// belong to other components and are skipped.
func overlayEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		section, field, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_")
		if !ok || field == "" || !sections[section] {
			continue
		}
		sub, _ := raw[section].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			raw[section] = sub
		}
		sub[field] = value
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	_ = v.RegisterValidation("aeskey", func(fl validator.FieldLevel) bool {
		_, err := decodeKey(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateStore, StoreConfig{})
	return v
}

func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)
	switch s.Kind {
	case "file", "badger", "sqlite":
		if s.Path == "" {
			sl.ReportError(s.Path, "path", "Path", "required_for_kind", s.Kind)
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (%v)", ns, fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config:\n- %s", strings.Join(msgs, "\n- "))
}

// Key decodes the base64 encryption key. It returns nil when encryption
// is disabled.
func (s StoreConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	return decodeKey(s.EncryptionKey)
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must decode to 32 bytes")
	}
	return key, nil
}
