package mqtt

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ardeus-ua/ha-addons/internal/models"
	"github.com/ardeus-ua/ha-addons/internal/services"
)

// Source tags batches that arrived over MQTT
const Source = "mqtt"

// Subscriber turns SOC messages into batches on BatchChan
type Subscriber struct {
	client mqtt.Client

	// Output channel (written by subscriber, read by IngestionService)
	BatchChan chan<- *models.Batch

	batchTopic  string
	sensorTopic string
	sensorIndex int // topic level holding the sensor ID in sensorTopic
	sendTimeout time.Duration
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	BatchTopic  string // e.g., "battery/soc", payload {"1": 17}
	SensorTopic string // e.g., "battery/+/soc", payload 17
}

// NewSubscriber creates a new MQTT subscriber
func NewSubscriber(client mqtt.Client, config SubscriberConfig, batchChan chan<- *models.Batch) *Subscriber {
	return &Subscriber{
		client:      client,
		BatchChan:   batchChan,
		batchTopic:  config.BatchTopic,
		sensorTopic: config.SensorTopic,
		sensorIndex: wildcardIndex(config.SensorTopic),
		sendTimeout: time.Second,
	}
}

// SubscribeAll subscribes to the configured topics. Safe to call on every reconnect
func (s *Subscriber) SubscribeAll() error {
	if s.batchTopic != "" {
		if err := s.subscribeToTopic(s.batchTopic, s.handleBatch); err != nil {
			return fmt.Errorf("failed to subscribe to batch topic: %w", err)
		}
		log.Printf("Subscribed to SOC batch topic: %s", s.batchTopic)
	}

	if s.sensorTopic != "" {
		if s.sensorIndex < 0 {
			return fmt.Errorf("sensor topic %q has no single-level wildcard", s.sensorTopic)
		}
		if err := s.subscribeToTopic(s.sensorTopic, s.handleSensor); err != nil {
			return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
		}
		log.Printf("Subscribed to per-sensor SOC topic: %s", s.sensorTopic)
	}

	return nil
}

func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleBatch processes {"<sensor id>": <soc>, ...} payloads
func (s *Subscriber) handleBatch(_ mqtt.Client, msg mqtt.Message) {
	updates, err := services.DecodeBatch(bytes.NewReader(msg.Payload()))
	if err != nil {
		log.Printf("Error parsing SOC batch on %s: %v", msg.Topic(), err)
		return
	}

	s.send(&models.Batch{Source: Source, Updates: updates})
}

// handleSensor processes a bare SOC value published to battery/<sensor id>/soc
func (s *Subscriber) handleSensor(_ mqtt.Client, msg mqtt.Message) {
	sensorID := topicLevel(msg.Topic(), s.sensorIndex)
	if sensorID == "" {
		log.Printf("Could not extract sensor ID from topic: %s", msg.Topic())
		return
	}

	soc, err := services.ParseSOC(msg.Payload())
	if err != nil {
		log.Printf("Error parsing SOC for sensor %s: %v", sensorID, err)
		return
	}

	s.send(&models.Batch{Source: Source, Updates: models.Readings{sensorID: soc}})
}

// send writes to the channel, giving up after sendTimeout
func (s *Subscriber) send(batch *models.Batch) {
	select {
	case s.BatchChan <- batch:
	case <-time.After(s.sendTimeout):
		log.Printf("Warning: Batch channel full, dropping %d SOC updates", len(batch.Updates))
	}
}

// wildcardIndex returns the level of the first "+" in a topic filter, or -1
func wildcardIndex(filter string) int {
	for i, level := range strings.Split(filter, "/") {
		if level == "+" {
			return i
		}
	}
	return -1
}

// topicLevel returns level i of topic
// Example: topicLevel("battery/3/soc", 1) -> "3"
func topicLevel(topic string, i int) string {
	parts := strings.Split(topic, "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
