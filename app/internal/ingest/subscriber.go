package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"storewatch/app/internal/config"
	"storewatch/app/internal/logging"
)

// handleTimeout bounds the database work done for one message
const handleTimeout = 5 * time.Second

// Subscriber feeds MQTT messages to a Handler
type Subscriber struct {
	client mqtt.Client
	log    logging.Logger
}

// filters returns the subscription of every handled topic under prefix
func filters(prefix string) map[string]byte {
	out := make(map[string]byte, len(Topics))
	for _, t := range Topics {
		out[prefix+t] = 1
	}
	return out
}

// Connect connects to the broker and subscribes to the ingest topics. Subscriptions
// are renewed on every reconnect.
func Connect(cfg config.MQTTConfig, h *Handler, log logging.Logger) (*Subscriber, error) {
	s := &Subscriber{log: log}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		_ = h.Handle(ctx, msg.Topic(), msg.Payload())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.SubscribeMultiple(filters(cfg.TopicPrefix), onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).Error("mqtt subscribe failed")
			return
		}
		log.WithField("prefix", cfg.TopicPrefix).Info("mqtt subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return s, nil
}

// Close disconnects from the broker
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
