// Package publisher pushes stored readings to an MQTT broker so home
// automation setups can track gas usage without touching the databases.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meterscraper/internal/config"
	"meterscraper/pkg/models"
)

// Publisher handles publishing readings to MQTT
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured broker
func New(cfg config.MQTTConfig, topicPrefix string) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT publishing is not enabled in config")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("meterscraper")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
	}, nil
}

// readingPayload is the JSON shape published per reading
type readingPayload struct {
	Start         string   `json:"start"`
	AccountNumber string   `json:"account_number"`
	Meter         string   `json:"meter"`
	UOM           string   `json:"uom"`
	Usage         *float64 `json:"usage"`
	Cost          *float64 `json:"cost"`
}

// Publish sends a reading to <prefix>/<meter>/reading with QoS 1 and
// retained so late subscribers see the latest value
func (p *Publisher) Publish(reading models.MeterReading) error {
	payload := readingPayload{
		Start:         reading.Start,
		AccountNumber: reading.AccountNumber,
		Meter:         reading.Meter,
		UOM:           reading.UOM,
		Usage:         reading.Usage,
		Cost:          reading.Cost,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/reading", p.topicPrefix, reading.Meter)
	token := p.client.Publish(topic, 1, true, body)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
