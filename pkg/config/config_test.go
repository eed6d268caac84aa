package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "DATA_FILE", "PUSH_ON_WRITE", "PUSH_INTERVAL", "MQTT_BROKER", "CLICKHOUSE_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DataFile != "data.json" {
		t.Errorf("DataFile = %q", cfg.DataFile)
	}
	if !cfg.PushOnWrite || cfg.PushInterval != 5*time.Second {
		t.Errorf("push = %v / %v", cfg.PushOnWrite, cfg.PushInterval)
	}
	if cfg.MQTTBroker != "" || cfg.ClickHouseAddr != "" {
		t.Error("MQTT and ClickHouse must be disabled by default")
	}
	if cfg.MQTTTopicSensor != "battery/+/soc" {
		t.Errorf("MQTTTopicSensor = %q", cfg.MQTTTopicSensor)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("PUSH_ON_WRITE", "false")
	t.Setenv("PUSH_INTERVAL", "0")
	t.Setenv("LOG_DEBUG", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg := Load()

	if cfg.HTTPAddr != ":8080" || cfg.PushOnWrite || cfg.PushInterval != 0 || !cfg.Debug {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MQTTBroker != "tcp://broker:1883" {
		t.Errorf("MQTTBroker = %q", cfg.MQTTBroker)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PUSH_ON_WRITE", "sometimes")
	t.Setenv("PUSH_INTERVAL", "soon")

	cfg := Load()

	if !cfg.PushOnWrite || cfg.PushInterval != 5*time.Second {
		t.Errorf("expected defaults, got %v / %v", cfg.PushOnWrite, cfg.PushInterval)
	}
}

func TestLoadSensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.yaml")
	data := "sensors:\n  - id: \"1\"\n    name: A\n  - id: \"2\"\n    name: B\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadSensors(path)
	if err != nil {
		t.Fatalf("LoadSensors: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d", reg.Len())
	}
	if name, _ := reg.Name("2"); name != "B" {
		t.Errorf("Name(2) = %q", name)
	}
}

func TestLoadSensors_Default(t *testing.T) {
	reg, err := LoadSensors("")
	if err != nil {
		t.Fatalf("LoadSensors: %v", err)
	}
	if reg.Len() != 5 {
		t.Errorf("Len = %d, want 5", reg.Len())
	}
}

func TestLoadSensors_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"duplicate": "sensors:\n  - id: \"1\"\n  - id: \"1\"\n",
		"empty":     "sensors: []\n",
		"invalid":   "sensors: [\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSensors(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadSensors(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
