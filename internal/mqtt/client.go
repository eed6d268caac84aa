package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client manages the broker connection. Subscriptions are not kept across a
// clean-session reconnect, so Subscriber registers itself through OnConnect
type Client struct {
	client mqtt.Client
	config ClientConfig

	mu    sync.Mutex
	hooks []func(mqtt.Client)
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewClient prepares a client; call Connect once hooks are registered
func NewClient(config ClientConfig) *Client {
	c := &Client{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(messagePubHandler)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)
	return c
}

// OnConnect registers fn to run after every (re)connect
func (c *Client) OnConnect(fn func(mqtt.Client)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Connect dials the broker and waits for the result
func (c *Client) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.config.Broker, token.Error())
	}
	log.Println("MQTT Client: Connected to broker:", c.config.Broker)
	return nil
}

func (c *Client) handleConnect(client mqtt.Client) {
	log.Println("MQTT: Connection established")

	c.mu.Lock()
	hooks := make([]func(mqtt.Client), len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	for _, hook := range hooks {
		hook(client)
	}
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}

var messagePubHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Printf("MQTT: Unhandled message on topic: %s", msg.Topic())
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT: Connection lost: %v", err)
}
