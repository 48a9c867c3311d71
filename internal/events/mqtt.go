// internal/events/mqtt.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/models"
)

// MealLogged is published after a meal has been durably stored.
type MealLogged struct {
	Identity   string      `json:"identity"`
	Meal       models.Meal `json:"meal"`
	DailyTotal int         `json:"daily_total"`
}

// Publisher announces stored meals to other systems.
type Publisher interface {
	PublishMealLogged(ctx context.Context, event MealLogged) error
	Close()
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTPublisher publishes meal events to <prefix>/<identity>/meals.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
	timeout     time.Duration
	log         zerolog.Logger
}

// New returns an MQTT publisher when enabled, and a no-op publisher otherwise.
func New(cfg MQTTConfig, log zerolog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "calorie-log"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
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
	// With connect retry on, the token only completes once connected.
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	return newMQTTPublisher(client, cfg.TopicPrefix, log), nil
}

func newMQTTPublisher(client mqtt.Client, prefix string, log zerolog.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = "calorie_log"
	}
	return &MQTTPublisher{
		client:      client,
		topicPrefix: prefix,
		timeout:     time.Second,
		log:         log.With().Str("component", "mqtt").Logger(),
	}
}

func (p *MQTTPublisher) topic(identity string) string {
	return fmt.Sprintf("%s/%s/meals", p.topicPrefix, identity)
}

func (p *MQTTPublisher) PublishMealLogged(ctx context.Context, event MealLogged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding meal event: %w", err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := p.client.Publish(p.topic(event.Identity), 0, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publishing meal event: timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing meal event: %w", err)
	}

	p.log.Debug().Str("identity", event.Identity).Str("meal_id", event.Meal.ID).Msg("meal event published")
	return nil
}

// Close disconnects from the MQTT broker.
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishMealLogged(context.Context, MealLogged) error { return nil }
func (Nop) Close() {}
