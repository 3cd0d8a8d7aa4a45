package services

import (
	"fmt"

	"github.com/amirphl/specialist-referral/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BuildChannels turns the ordered channel config into live channels. The returned
// close function releases broker connections opened for queue channels.
func BuildChannels(cfg *config.ProductionConfig, logger *zap.Logger) ([]Channel, func() error, error) {
	var (
		channels   []Channel
		kafkaW     KafkaWriter
		mqttClient mqtt.Client
	)

	closeAll := func() error {
		var err error
		if kafkaW != nil {
			err = multierr.Append(err, kafkaW.Close())
		}
		if mqttClient != nil {
			mqttClient.Disconnect(250)
		}
		return err
	}

	for _, chCfg := range cfg.Notification.Channels {
		switch chCfg.Kind {
		case config.ChannelKindSMSGateway:
			channels = append(channels, NewSMSGatewayChannel(chCfg))
		case config.ChannelKindPayamSMS:
			channels = append(channels, NewPayamSMSChannel(chCfg))
		case config.ChannelKindFunction:
			channels = append(channels, NewFunctionChannel(chCfg))
		case config.ChannelKindKafka:
			if kafkaW == nil {
				kafkaW = NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.BatchTimeout)
			}
			topic := chCfg.Topic
			if topic == "" {
				topic = cfg.Kafka.NotificationTopic
			}
			channels = append(channels, NewKafkaChannel(chCfg.Name, topic, kafkaW))
		case config.ChannelKindMQTT:
			if mqttClient == nil {
				client, err := NewMQTTClient(cfg.MQTT)
				if err != nil {
					_ = closeAll()
					return nil, nil, fmt.Errorf("channel %s: %w", chCfg.Name, err)
				}
				mqttClient = client
			}
			prefix := chCfg.Topic
			if prefix == "" {
				prefix = cfg.MQTT.TopicPrefix
			}
			timeout := chCfg.Timeout
			if timeout <= 0 {
				timeout = cfg.MQTT.Timeout
			}
			channels = append(channels, NewMQTTChannel(chCfg.Name, mqttClient, prefix, cfg.MQTT.QoS, timeout))
		case config.ChannelKindMock:
			mock := NewMockChannel(chCfg.Name)
			mock.FailWith = chCfg.FailWith
			channels = append(channels, mock)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown channel kind %q for channel %s", chCfg.Kind, chCfg.Name)
		}

		logger.Info("Delivery channel configured",
			zap.Int("priority", len(channels)),
			zap.String("name", chCfg.Name),
			zap.String("kind", chCfg.Kind),
		)
	}

	if len(channels) == 0 {
		logger.Warn("No delivery channels configured; notifications will be logged as failed")
	}

	return channels, closeAll, nil
}
