package persistence

import (
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/config"
)

// NewMQTT connects to the event broker. It returns a nil client when no broker
// is configured.
func NewMQTT(cfg config.MQTTConfig, logger *zap.Logger) (mqtt.Client, error) {
	if cfg.BrokerURL == "" {
		logger.Info("MQTT_BROKER not provided; mqtt events disabled")
		return nil, nil
	}
	if cfg.ClientID == "" {
		return nil, errors.New("mqtt client id is empty")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnConnect = func(_ mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL), zap.String("client_id", cfg.ClientID))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return client, nil
}
