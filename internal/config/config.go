/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * The Santander mTLS certificate and private key arrive base64-encoded so they
 * can be injected through ordinary environment variables; they are decoded once
 * at bootstrap into an immutable CredentialBundle.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the boleto-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	BoletoEventExchange     string `mapstructure:"BOLETO_EVENT_EXCHANGE"`
	SantanderBaseURL        string `mapstructure:"SANTANDER_BASE_URL"`
	SantanderClientID       string `mapstructure:"SANTANDER_CLIENT_ID"`
	SantanderClientSecret   string `mapstructure:"SANTANDER_CLIENT_SECRET"`
	SantanderCertPEMBase64  string `mapstructure:"SANTANDER_CERT_PEM_BASE64"`
	SantanderKeyPEMBase64   string `mapstructure:"SANTANDER_KEY_PEM_BASE64"`
	SantanderKeyPassphrase  string `mapstructure:"SANTANDER_KEY_PASSPHRASE"`
	CovenantCode            string `mapstructure:"SANTANDER_COVENANT_CODE"`
	ParticipantCode         string `mapstructure:"SANTANDER_PARTICIPANT_CODE"`
	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	DueDateBusinessDays     int    `mapstructure:"DUE_DATE_BUSINESS_DAYS"`
	IssueRateLimitPerMinute int    `mapstructure:"ISSUE_RATE_LIMIT_PER_MINUTE"`
	BusinessTimezone        string `mapstructure:"BUSINESS_TIMEZONE"`
	S3BaseEndpoint          string `mapstructure:"S3_BASE_ENDPOINT"`
	S3Region                string `mapstructure:"S3_REGION"`
	S3Bucket                string `mapstructure:"S3_BUCKET"`
	S3AccessKey             string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey             string `mapstructure:"S3_SECRET_KEY"`
}

// CredentialBundle is the immutable mTLS and client-credential material used by
// the Santander client. It is built once from the decoded configuration and
// must never be logged in full.
type CredentialBundle struct {
	ClientID       string
	ClientSecret   string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	Passphrase     string
}

// String implements fmt.Stringer so accidental logging of the bundle never
// exposes the secret or key material.
func (b CredentialBundle) String() string {
	return fmt.Sprintf("CredentialBundle{ClientID:%s, ClientSecret:[redacted], CertificatePEM:%d bytes, PrivateKeyPEM:[redacted]}",
		b.ClientID, len(b.CertificatePEM))
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BOLETO_EVENT_EXCHANGE", "pagmais.events")
	viper.SetDefault("SANTANDER_BASE_URL", "https://trust-open.api.santander.com.br")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pagmais:rate_limit")
	viper.SetDefault("DUE_DATE_BUSINESS_DAYS", 5)
	viper.SetDefault("ISSUE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	viper.SetDefault("S3_REGION", "us-east-1")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BOLETO_EVENT_EXCHANGE")
	_ = viper.BindEnv("SANTANDER_BASE_URL")
	_ = viper.BindEnv("SANTANDER_CLIENT_ID")
	_ = viper.BindEnv("SANTANDER_CLIENT_SECRET")
	_ = viper.BindEnv("SANTANDER_CERT_PEM_BASE64")
	_ = viper.BindEnv("SANTANDER_KEY_PEM_BASE64")
	_ = viper.BindEnv("SANTANDER_KEY_PASSPHRASE")
	_ = viper.BindEnv("SANTANDER_COVENANT_CODE")
	_ = viper.BindEnv("SANTANDER_PARTICIPANT_CODE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("DUE_DATE_BUSINESS_DAYS")
	_ = viper.BindEnv("ISSUE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("S3_BASE_ENDPOINT")
	_ = viper.BindEnv("S3_REGION")
	_ = viper.BindEnv("S3_BUCKET")
	_ = viper.BindEnv("S3_ACCESS_KEY")
	_ = viper.BindEnv("S3_SECRET_KEY")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.SantanderBaseURL = strings.TrimRight(strings.TrimSpace(config.SantanderBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pagmais:rate_limit"
	}

	if config.DueDateBusinessDays <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive due-date business days; using default\" value=%d", config.DueDateBusinessDays)
		config.DueDateBusinessDays = 5
	}
	if config.IssueRateLimitPerMinute < 0 {
		config.IssueRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.BusinessTimezone) == "" {
		config.BusinessTimezone = "America/Sao_Paulo"
	}

	return
}

// CredentialBundle decodes the base64-encoded certificate material and returns
// the immutable bundle used to build the mTLS transport.
func (c Config) CredentialBundle() (CredentialBundle, error) {
	if strings.TrimSpace(c.SantanderClientID) == "" || strings.TrimSpace(c.SantanderClientSecret) == "" {
		return CredentialBundle{}, errors.New("santander client credentials are not configured")
	}

	certPEM, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.SantanderCertPEMBase64))
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("failed to decode certificate pem: %w", err)
	}
	keyPEM, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.SantanderKeyPEMBase64))
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("failed to decode private key pem: %w", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return CredentialBundle{}, errors.New("santander certificate material is not configured")
	}

	return CredentialBundle{
		ClientID:       c.SantanderClientID,
		ClientSecret:   c.SantanderClientSecret,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		Passphrase:     c.SantanderKeyPassphrase,
	}, nil
}
