// Package telemetry ingests ward census updates published by unit terminals over MQTT.
//
// Each message is one ward's census as JSON on a topic whose last segment is the ward id,
// for example hospital/census/urg.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

// WardUpdater applies a single ward update; census.Store satisfies it directly.
type WardUpdater interface {
	UpdateWard(ward models.ServiceCensus) ([]models.ServiceCensus, error)
}

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

type Subscriber struct {
	cfg     Config
	client  mqtt.Client
	updater WardUpdater
	logger  *zap.Logger
}

func NewSubscriber(cfg Config, updater WardUpdater, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{cfg: cfg, updater: updater, logger: logger}
}

// Start connects to the broker and subscribes to the census topic.
func (s *Subscriber) Start() error {
	if s.cfg.Broker == "" {
		return fmt.Errorf("mqtt broker required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := s.subscribe(c); err != nil {
			s.logger.Error("mqtt resubscribe failed", zap.Error(err))
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	s.client = client
	s.logger.Info("census telemetry subscribed", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			s.logger.Warn("census telemetry rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.cfg.Topic, token.Error())
	}
	return nil
}

// HandleMessage decodes one ward update and applies it.
func (s *Subscriber) HandleMessage(topic string, payload []byte) error {
	var ward models.ServiceCensus
	if err := json.Unmarshal(payload, &ward); err != nil {
		return fmt.Errorf("decode census payload: %w", err)
	}
	topicID := topic[strings.LastIndex(topic, "/")+1:]
	switch {
	case ward.ID == "":
		ward.ID = topicID
	case topicID != "" && ward.ID != topicID:
		return fmt.Errorf("ward id %q does not match topic %q", ward.ID, topic)
	}
	if _, err := s.updater.UpdateWard(ward); err != nil {
		return fmt.Errorf("apply ward %s: %w", ward.ID, err)
	}
	s.logger.Debug("census telemetry applied", zap.String("ward", ward.ID))
	return nil
}

func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
