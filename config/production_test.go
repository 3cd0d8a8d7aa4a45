package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadProductionConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "90", cfg.Referral.CountryCode)
	assert.Equal(t, 30*time.Minute, cfg.Referral.StagingTTL)
	assert.NotEmpty(t, cfg.Referral.SwitchboardNumbers)
	assert.Equal(t, LookupProviderNone, cfg.Lookup.Provider)

	// SMS_PROVIDER_DOMAIN defaults to mock and function channels need URLs
	require.Len(t, cfg.Notification.Channels, 1)
	assert.Equal(t, ChannelKindMock, cfg.Notification.Channels[0].Kind)
}

func TestLoadProductionConfig_ChannelOrderFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SMS_PROVIDER_DOMAIN", "sms.example.com")
	t.Setenv("SMS_API_KEY", "key")
	t.Setenv("SMS_SOURCE_NUMBER", "3000")
	t.Setenv("FUNCTION_WHATSAPP_URL", "https://functions.example.com/send-whatsapp")
	t.Setenv("FUNCTION_SMS_URL", "https://functions.example.com/send-sms")
	t.Setenv("NOTIFY_CHANNEL_ORDER", "whatsapp_function,sms_gateway,sms_function")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Notification.Channels, 3)
	assert.Equal(t, "whatsapp_function", cfg.Notification.Channels[0].Name)
	assert.Equal(t, ChannelKindFunction, cfg.Notification.Channels[0].Kind)
	assert.Equal(t, "https://sms.example.com", cfg.Notification.Channels[1].URL)
	assert.Equal(t, "https://functions.example.com/send-sms", cfg.Notification.Channels[2].URL)
}

func TestLoadChannelsFile(t *testing.T) {
	t.Setenv("TEST_FUNCTION_KEY", "service-key")

	path := filepath.Join(t.TempDir(), "channels.yaml")
	content := `channels:
  - name: whatsapp
    kind: function
    url: https://functions.example.com/send-whatsapp
    api_key: ${TEST_FUNCTION_KEY}
    timeout: 7s
  - kind: kafka
    topic: specialist-notifications
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	channels, err := LoadChannelsFile(path)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	assert.Equal(t, "whatsapp", channels[0].Name)
	assert.Equal(t, "service-key", channels[0].APIKey)
	assert.Equal(t, 7*time.Second, channels[0].Timeout)
	assert.Equal(t, ChannelKindKafka, channels[1].Name)
}

func TestLoadChannelsFile_Missing(t *testing.T) {
	_, err := LoadChannelsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateProductionConfig_CollectsErrors(t *testing.T) {
	cfg := &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "db", User: "u"},
		JWT:      JWTConfig{SecretKey: "short", AccessTokenTTL: time.Hour, Issuer: "i", Audience: "a"},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		Lookup:   LookupConfig{Provider: "carrier-pigeon"},
		Notification: NotificationConfig{
			Channels:        []ChannelConfig{{Name: "fn", Kind: ChannelKindFunction}},
			MessageTemplate: "hi",
			DispatchTimeout: time.Second,
		},
		Referral: ReferralConfig{CountryCode: "+90", StagingTTL: time.Minute},
	}

	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DB_PASSWORD is required")
	assert.Contains(t, msg, "JWT_SECRET_KEY must be at least 32 characters long")
	assert.Contains(t, msg, `LOOKUP_PROVIDER "carrier-pigeon" is not supported`)
	assert.Contains(t, msg, `channel[0] "fn": url is required`)
	assert.Contains(t, msg, "REFERRAL_COUNTRY_CODE must contain digits only")
}
