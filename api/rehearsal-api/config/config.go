// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rapidaai/pitch-rehearsal/pkg/configs"
	"github.com/spf13/viper"
)

type TwilioConfig struct {
	AccountSid        string `mapstructure:"account_sid"`
	AuthToken         string `mapstructure:"auth_token"`
	PhoneNumber       string `mapstructure:"phone_number"`
	ValidateSignature bool   `mapstructure:"validate_signature"`
}

type PersonaConfig struct {
	Provider          string        `mapstructure:"provider" validate:"required,oneof=anthropic openai openrouter gemini"`
	Model             string        `mapstructure:"model" validate:"required"`
	ApiKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries           int           `mapstructure:"retries" validate:"gte=0,lte=5"`
	Backoff           time.Duration `mapstructure:"backoff"`
	MaxTokens         int           `mapstructure:"max_tokens" validate:"gt=0"`
	GreetingMaxTokens int           `mapstructure:"greeting_max_tokens" validate:"gt=0"`
	Temperature       float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	PromptPath        string        `mapstructure:"prompt_path"`
	Label             string        `mapstructure:"label"`
	HttpReferer       string        `mapstructure:"http_referer"`
	XTitle            string        `mapstructure:"x_title"`
}

type CoachConfig struct {
	ApiKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	PromptPath string `mapstructure:"prompt_path"`
}

// Enabled reports whether coaching endpoints have a backend to talk to.
func (c CoachConfig) Enabled() bool {
	return c.ApiKey != ""
}

type RelayConfig struct {
	Path              string        `mapstructure:"path" validate:"required,startswith=/"`
	VoiceId           string        `mapstructure:"voice_id"`
	TtsProvider       string        `mapstructure:"tts_provider"`
	Language          string        `mapstructure:"language"`
	TextNormalization string        `mapstructure:"text_normalization"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	FlushAttempts int           `mapstructure:"flush_attempts" validate:"gte=1"`
	FlushBackoff  time.Duration `mapstructure:"flush_backoff"`
	InboxSize     int           `mapstructure:"inbox_size" validate:"gte=1"`
	TombstoneTTL  time.Duration `mapstructure:"tombstone_ttl"`
	IndexTTL      time.Duration `mapstructure:"index_ttl"`
}

// Application config structure
type AppConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"port" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogPath     string `mapstructure:"log_path"`
	Env         string `mapstructure:"env"`
	InstanceId  string `mapstructure:"instance_id"`
	BaseURL     string `mapstructure:"base_url" validate:"required"`
	CorsOrigins string `mapstructure:"cors_origins"`

	Twilio   TwilioConfig           `mapstructure:"twilio"`
	Persona  PersonaConfig          `mapstructure:"persona" validate:"required"`
	Coach    CoachConfig            `mapstructure:"coach"`
	Relay    RelayConfig            `mapstructure:"relay" validate:"required"`
	Session  SessionConfig          `mapstructure:"session" validate:"required"`
	Database configs.DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    configs.RedisConfig    `mapstructure:"redis"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
		log.Printf("Reading from env varaibles.")
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// keeping watch on https://github.com/spf13/viper/issues/188
	// every key must have a default or AutomaticEnv will not see it during Unmarshal

	v.SetDefault("SERVICE_NAME", "pitch-rehearsal")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PATH", "/tmp/logs")
	v.SetDefault("ENV", "development")
	v.SetDefault("INSTANCE_ID", "")
	v.SetDefault("BASE_URL", "http://localhost:8000")
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("TWILIO__ACCOUNT_SID", "")
	v.SetDefault("TWILIO__AUTH_TOKEN", "")
	v.SetDefault("TWILIO__PHONE_NUMBER", "")
	v.SetDefault("TWILIO__VALIDATE_SIGNATURE", false)

	v.SetDefault("PERSONA__PROVIDER", "openrouter")
	v.SetDefault("PERSONA__MODEL", "google/gemini-2.5-flash")
	v.SetDefault("PERSONA__API_KEY", "")
	v.SetDefault("PERSONA__BASE_URL", "")
	v.SetDefault("PERSONA__TIMEOUT", "8s")
	v.SetDefault("PERSONA__RETRIES", 1)
	v.SetDefault("PERSONA__BACKOFF", "250ms")
	v.SetDefault("PERSONA__MAX_TOKENS", 300)
	v.SetDefault("PERSONA__GREETING_MAX_TOKENS", 100)
	v.SetDefault("PERSONA__TEMPERATURE", 0.7)
	v.SetDefault("PERSONA__PROMPT_PATH", "")
	v.SetDefault("PERSONA__LABEL", "Sarah Chen")
	v.SetDefault("PERSONA__HTTP_REFERER", "")
	v.SetDefault("PERSONA__X_TITLE", "")

	v.SetDefault("COACH__API_KEY", "")
	v.SetDefault("COACH__MODEL", "gpt-4o-mini")
	v.SetDefault("COACH__BASE_URL", "")
	v.SetDefault("COACH__PROMPT_PATH", "")

	v.SetDefault("RELAY__PATH", "/voice/relay")
	v.SetDefault("RELAY__VOICE_ID", "OYTbf65OHHFELVut7v2H")
	v.SetDefault("RELAY__TTS_PROVIDER", "ElevenLabs")
	v.SetDefault("RELAY__LANGUAGE", "en-US")
	v.SetDefault("RELAY__TEXT_NORMALIZATION", "on")
	v.SetDefault("RELAY__WRITE_TIMEOUT", "5s")

	v.SetDefault("SESSION__IDLE_TIMEOUT", "60s")
	v.SetDefault("SESSION__FLUSH_ATTEMPTS", 4)
	v.SetDefault("SESSION__FLUSH_BACKOFF", "200ms")
	v.SetDefault("SESSION__INBOX_SIZE", 64)
	v.SetDefault("SESSION__TOMBSTONE_TTL", "2m")
	v.SetDefault("SESSION__INDEX_TTL", "6h")

	v.SetDefault("DATABASE__DRIVER", "sqlite")
	v.SetDefault("DATABASE__SQLITE__PATH", "data/transcripts.db")
	v.SetDefault("DATABASE__POSTGRES__HOST", "localhost")
	v.SetDefault("DATABASE__POSTGRES__PORT", 5432)
	v.SetDefault("DATABASE__POSTGRES__DB_NAME", "<>")
	v.SetDefault("DATABASE__POSTGRES__AUTH__USER", "<>")
	v.SetDefault("DATABASE__POSTGRES__AUTH__PASSWORD", "<>")
	v.SetDefault("DATABASE__POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("DATABASE__POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("DATABASE__POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)
	v.SetDefault("REDIS__MAX_CONNECTION", 10)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
