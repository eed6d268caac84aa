package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// tokenPublisher is the part of mqtt.Client the publisher uses
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher mirrors the reading set to a retained state topic
// Publish only replaces the pending state; Start does the broker round trip
type Publisher struct {
	client tokenPublisher

	// Latest unpublished state (written by BroadcastService through Publish, read by Start)
	StateChan chan models.Readings

	stateTopic     string
	publishTimeout time.Duration
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	StateTopic string // e.g., "battery/soc/state"
}

// NewPublisher creates a new MQTT state publisher
func NewPublisher(client tokenPublisher, config PublisherConfig) *Publisher {
	return &Publisher{
		client:         client,
		StateChan:      make(chan models.Readings, 1),
		stateTopic:     config.StateTopic,
		publishTimeout: 5 * time.Second,
	}
}

// Name implements services.Sink
func (p *Publisher) Name() string {
	return "mqtt:" + p.stateTopic
}

// Publish implements services.Sink. It never waits on the broker: a state
// still pending from an earlier call is replaced by this one
func (p *Publisher) Publish(_ context.Context, readings models.Readings) error {
	for {
		select {
		case p.StateChan <- readings:
			return nil
		default:
		}

		select {
		case <-p.StateChan:
		default:
		}
	}
}

// Start publishes queued states until ctx is cancelled or the channel is closed
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case readings, ok := <-p.StateChan:
			if !ok {
				log.Println("MQTT Publisher: State channel closed, shutting down...")
				return
			}

			if err := p.publishState(readings); err != nil {
				log.Printf("Error publishing SOC state: %v", err)
			}
		}
	}
}

// publishState publishes the readings as a retained message so new
// subscribers get the latest state immediately
func (p *Publisher) publishState(readings models.Readings) error {
	payload, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to marshal SOC state: %w", err)
	}

	token := p.client.Publish(p.stateTopic, 1, true, payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("timed out publishing SOC state to %s", p.stateTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish SOC state: %w", err)
	}

	return nil
}
