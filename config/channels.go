package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel kinds understood by the channel factory
const (
	ChannelKindSMSGateway = "sms_gateway"
	ChannelKindPayamSMS   = "payam_sms"
	ChannelKindFunction   = "function"
	ChannelKindKafka      = "kafka"
	ChannelKindMQTT       = "mqtt"
	ChannelKindMock       = "mock"
)

// ChannelConfig describes one delivery channel. Order in the list is the
// delivery priority: the first entry is the primary channel.
type ChannelConfig struct {
	Name           string        `json:"name" yaml:"name"`
	Kind           string        `json:"kind" yaml:"kind"`
	URL            string        `json:"url,omitempty" yaml:"url"`
	APIKey         string        `json:"-" yaml:"api_key"`
	SourceNumber   string        `json:"source_number,omitempty" yaml:"source_number"`
	Username       string        `json:"username,omitempty" yaml:"username"`
	Password       string        `json:"-" yaml:"password"`
	SystemName     string        `json:"system_name,omitempty" yaml:"system_name"`
	Topic          string        `json:"topic,omitempty" yaml:"topic"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	RetryCount     int           `json:"retry_count,omitempty" yaml:"retry_count"`
	ValidityPeriod int           `json:"validity_period,omitempty" yaml:"validity_period"`
	FailWith       string        `json:"fail_with,omitempty" yaml:"fail_with"` // mock only
}

type channelsFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadChannelsFile reads an ordered channel list from YAML. ${VAR} references are
// expanded from the environment so secrets stay out of the file.
func LoadChannelsFile(path string) ([]ChannelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels file %s: %w", path, err)
	}

	var file channelsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse channels file %s: %w", path, err)
	}

	for i := range file.Channels {
		if file.Channels[i].Name == "" {
			file.Channels[i].Name = file.Channels[i].Kind
		}
	}
	return file.Channels, nil
}

// loadChannels prefers the YAML file and otherwise assembles channels from env
// following NOTIFY_CHANNEL_ORDER
func loadChannels(cfg *ProductionConfig) ([]ChannelConfig, error) {
	if cfg.Notification.ChannelsFile != "" {
		return LoadChannelsFile(cfg.Notification.ChannelsFile)
	}

	order := getEnvStringSlice("NOTIFY_CHANNEL_ORDER", []string{"sms_gateway", "whatsapp_function", "sms_function"})
	var channels []ChannelConfig
	for _, name := range order {
		ch, ok := channelFromEnv(name, cfg)
		if ok {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

// channelFromEnv builds a named channel; unconfigured optional channels are skipped
func channelFromEnv(name string, cfg *ProductionConfig) (ChannelConfig, bool) {
	switch name {
	case "sms_gateway":
		if cfg.SMS.ProviderDomain == "mock" {
			return ChannelConfig{Name: "sms_mock", Kind: ChannelKindMock}, true
		}
		return ChannelConfig{
			Name:           name,
			Kind:           ChannelKindSMSGateway,
			URL:            "https://" + cfg.SMS.ProviderDomain,
			APIKey:         cfg.SMS.APIKey,
			SourceNumber:   cfg.SMS.SourceNumber,
			Timeout:        cfg.SMS.Timeout,
			RetryCount:     cfg.SMS.RetryCount,
			ValidityPeriod: cfg.SMS.ValidityPeriod,
		}, true
	case "whatsapp_function", "sms_function":
		envKey := "FUNCTION_" + strings.ToUpper(strings.TrimSuffix(name, "_function")) + "_URL"
		url := getEnvString(envKey, "")
		if url == "" {
			return ChannelConfig{}, false
		}
		return ChannelConfig{
			Name:    name,
			Kind:    ChannelKindFunction,
			URL:     url,
			APIKey:  getEnvString("FUNCTION_SERVICE_KEY", ""),
			Timeout: getEnvDuration("FUNCTION_TIMEOUT", 10*time.Second),
		}, true
	case "payam_sms":
		url := getEnvString("PAYAM_SMS_URL", "")
		if url == "" {
			return ChannelConfig{}, false
		}
		return ChannelConfig{
			Name:         name,
			Kind:         ChannelKindPayamSMS,
			URL:          url,
			Username:     getEnvString("PAYAM_SMS_USERNAME", ""),
			Password:     getEnvString("PAYAM_SMS_PASSWORD", ""),
			SystemName:   getEnvString("PAYAM_SMS_SYSTEM_NAME", ""),
			SourceNumber: getEnvString("PAYAM_SMS_SOURCE_NUMBER", ""),
			Timeout:      getEnvDuration("PAYAM_SMS_TIMEOUT", 10*time.Second),
		}, true
	case "kafka":
		return ChannelConfig{Name: name, Kind: ChannelKindKafka, Topic: cfg.Kafka.NotificationTopic}, true
	case "mqtt":
		return ChannelConfig{Name: name, Kind: ChannelKindMQTT, Topic: cfg.MQTT.TopicPrefix, Timeout: cfg.MQTT.Timeout}, true
	case "mock":
		return ChannelConfig{Name: name, Kind: ChannelKindMock}, true
	default:
		return ChannelConfig{Name: name, Kind: name}, true
	}
}

func (c ChannelConfig) validate(index int) []string {
	var errs []string
	label := fmt.Sprintf("channel[%d] %q", index, c.Name)

	switch c.Kind {
	case ChannelKindSMSGateway:
		if c.URL == "" || c.APIKey == "" || c.SourceNumber == "" {
			errs = append(errs, label+": url, api_key and source_number are required")
		}
	case ChannelKindPayamSMS:
		if c.URL == "" || c.Username == "" || c.Password == "" {
			errs = append(errs, label+": url, username and password are required")
		}
	case ChannelKindFunction:
		if c.URL == "" {
			errs = append(errs, label+": url is required")
		}
	case ChannelKindKafka, ChannelKindMQTT:
		if c.Topic == "" {
			errs = append(errs, label+": topic is required")
		}
	case ChannelKindMock:
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q", label, c.Kind))
	}
	return errs
}
