package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = "config.yaml"

// EnvPrefix selects the environment variables that override file values.
// CALLSENSE_SERVER__PORT maps to server.port.
const EnvPrefix = "CALLSENSE_"

const (
	ClassifierCohere  = "cohere"
	ClassifierKeyword = "keyword"

	TelephonyTwilio = "twilio"
	TelephonyFake   = "fake"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Classifier   ClassifierConfig   `koanf:"classifier"`
	Telephony    TelephonyConfig    `koanf:"telephony"`
	Conversation ConversationConfig `koanf:"conversation"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text; empty picks text on a terminal
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type ClassifierConfig struct {
	Type    string        `koanf:"type"` // cohere, keyword
	Timeout time.Duration `koanf:"timeout"`
	Cohere  CohereConfig  `koanf:"cohere"`
}

type CohereConfig struct {
	APIKey   string          `koanf:"api_key"`
	ModelID  string          `koanf:"model_id"`
	BaseURL  string          `koanf:"base_url"`
	Examples []ExampleConfig `koanf:"examples"`
}

// ExampleConfig is one labeled utterance sent with classification requests.
type ExampleConfig struct {
	Text  string `koanf:"text"`
	Label string `koanf:"label"`
}

type TelephonyConfig struct {
	Type     string       `koanf:"type"` // twilio, fake
	Voice    string       `koanf:"voice"`
	Language string       `koanf:"language"`
	Twilio   TwilioConfig `koanf:"twilio"`
}

type TwilioConfig struct {
	AccountSID         string `koanf:"account_sid"`
	AuthToken          string `koanf:"auth_token"`
	PublicURL          string `koanf:"public_url"` // externally visible base URL used to sign webhooks
	ValidateSignatures bool   `koanf:"validate_signatures"`
}

type ConversationConfig struct {
	TerminationPhrases []string      `koanf:"termination_phrases"`
	Prompts            PromptsConfig `koanf:"prompts"`
}

// PromptsConfig overrides spoken prompts. Empty fields keep the built-in text.
type PromptsConfig struct {
	Greeting        string `koanf:"greeting"`
	Repeat          string `koanf:"repeat"`
	Acknowledgement string `koanf:"acknowledgement"`
	Farewell        string `koanf:"farewell"`
	Apology         string `koanf:"apology"`
}

var defaults = map[string]any{
	"server.port":                     5000,
	"server.request_timeout":          "10s",
	"server.shutdown_timeout":         "15s",
	"log.level":                       "info",
	"telemetry.service_name":          "callsense",
	"classifier.type":                 ClassifierCohere,
	"classifier.timeout":              "5s",
	"classifier.cohere.api_key":       "${COHERE_API_KEY}",
	"classifier.cohere.model_id":      "${COHERE_MODEL_ID}",
	"telephony.type":                  TelephonyTwilio,
	"telephony.voice":                 "alice",
	"telephony.language":              "en-US",
	"telephony.twilio.account_sid":    "${TWILIO_ACCOUNT_SID}",
	"telephony.twilio.auth_token":     "${TWILIO_AUTH_TOKEN}",
	"conversation.termination_phrases": []string{"no", "goodbye", "bye"},
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (or DefaultPath when empty), then CALLSENSE_ environment
// variables, then fills defaults. A missing DefaultPath is not an error; a
// missing named file is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Classifier.Cohere.APIKey = substituteEnvVars(cfg.Classifier.Cohere.APIKey)
	cfg.Classifier.Cohere.ModelID = substituteEnvVars(cfg.Classifier.Cohere.ModelID)
	cfg.Classifier.Cohere.BaseURL = substituteEnvVars(cfg.Classifier.Cohere.BaseURL)
	cfg.Telephony.Twilio.AccountSID = substituteEnvVars(cfg.Telephony.Twilio.AccountSID)
	cfg.Telephony.Twilio.AuthToken = substituteEnvVars(cfg.Telephony.Twilio.AuthToken)
	cfg.Telephony.Twilio.PublicURL = substituteEnvVars(cfg.Telephony.Twilio.PublicURL)

	return &cfg, nil
}

// Validate reports missing credentials for the selected live integrations
// and values that cannot be used.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}

	switch c.Classifier.Type {
	case ClassifierCohere:
		if c.Classifier.Cohere.APIKey == "" {
			errs = append(errs, errors.New("classifier.cohere.api_key is required (COHERE_API_KEY)"))
		}
		if c.Classifier.Cohere.ModelID == "" {
			errs = append(errs, errors.New("classifier.cohere.model_id is required (COHERE_MODEL_ID)"))
		}
	case ClassifierKeyword:
	default:
		errs = append(errs, fmt.Errorf("unknown classifier.type %q", c.Classifier.Type))
	}

	switch c.Telephony.Type {
	case TelephonyTwilio:
		if c.Telephony.Twilio.AccountSID == "" || c.Telephony.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("telephony.twilio.account_sid and auth_token are required (TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN)"))
		}
		if c.Telephony.Twilio.ValidateSignatures && c.Telephony.Twilio.PublicURL == "" {
			errs = append(errs, errors.New("telephony.twilio.public_url is required when validate_signatures is set"))
		}
	case TelephonyFake:
	default:
		errs = append(errs, fmt.Errorf("unknown telephony.type %q", c.Telephony.Type))
	}

	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
