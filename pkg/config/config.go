package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ardeus-ua/ha-addons/internal/models"
	"github.com/ardeus-ua/ha-addons/internal/registry"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr string

	// Storage Configuration
	DataFile    string
	SensorsFile string

	// Push Configuration
	PushOnWrite  bool
	PushInterval time.Duration
	Debug        bool

	// MQTT Configuration (disabled when MQTTBroker is empty)
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	MQTTTopicBatch  string
	MQTTTopicSensor string
	MQTTTopicState  string

	// ClickHouse Configuration (disabled when ClickHouseAddr is empty)
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":5000"),

		DataFile:    getEnv("DATA_FILE", "data.json"),
		SensorsFile: getEnv("SENSORS_FILE", ""),

		PushOnWrite:  getEnvBool("PUSH_ON_WRITE", true),
		PushInterval: getEnvDuration("PUSH_INTERVAL", 5*time.Second),
		Debug:        getEnvBool("LOG_DEBUG", false),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "battery-soc"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		MQTTTopicBatch:  getEnv("MQTT_TOPIC_BATCH", "battery/soc"),
		MQTTTopicSensor: getEnv("MQTT_TOPIC_SENSOR", "battery/+/soc"),
		MQTTTopicState:  getEnv("MQTT_TOPIC_STATE", "battery/soc/state"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "iot"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),
	}
}

type sensorsFile struct {
	Sensors []models.Sensor `yaml:"sensors"`
}

// LoadSensors reads the sensor registry from a YAML file
// An empty path selects the built-in registry
func LoadSensors(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensors file: %w", err)
	}

	var file sensorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sensors file %s: %w", path, err)
	}

	reg, err := registry.New(file.Sensors)
	if err != nil {
		return nil, fmt.Errorf("invalid sensors file %s: %w", path, err)
	}
	return reg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	durationValue, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return durationValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}
