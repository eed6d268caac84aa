package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/ardeus-ua/ha-addons/internal/api"
	"github.com/ardeus-ua/ha-addons/internal/database"
	"github.com/ardeus-ua/ha-addons/internal/hub"
	"github.com/ardeus-ua/ha-addons/internal/mqtt"
	"github.com/ardeus-ua/ha-addons/internal/services"
	"github.com/ardeus-ua/ha-addons/internal/store"
	"github.com/ardeus-ua/ha-addons/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Println("Starting Battery SOC Service...")

	// Load configuration
	cfg := config.Load()

	reg, err := config.LoadSensors(cfg.SensorsFile)
	if err != nil {
		log.Fatalf("Failed to load sensor registry: %v", err)
	}

	// Context is cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// === Reading Store ===
	st := store.Open(cfg.DataFile, reg)
	log.Printf("Reading store: %s (%d sensors)", st.Path(), reg.Len())

	// === Viewer channels ===
	wsHub := hub.New(st)
	g.Go(func() error {
		wsHub.Run(ctx)
		return nil
	})

	broadcastService := services.NewBroadcastService(
		st,
		services.BroadcastServiceConfig{Interval: cfg.PushInterval},
		wsHub,
	)

	// === Optional ClickHouse mirror ===
	var mirror services.Mirror
	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(
			cfg.ClickHouseAddr,
			cfg.ClickHouseDB,
			cfg.ClickHouseUser,
			cfg.ClickHousePass,
		)
		if err != nil {
			log.Fatalf("Failed to initialize ClickHouse: %v", err)
		}
		defer db.Close()

		socMirror := database.NewSOCMirror(db, reg.Name, 100)
		g.Go(func() error {
			socMirror.Start(ctx)
			return nil
		})
		mirror = socMirror
	}

	// === Ingestion ===
	ingestionConfig := services.DefaultIngestionServiceConfig()
	ingestionConfig.PushOnWrite = cfg.PushOnWrite
	ingestionConfig.Debug = cfg.Debug

	ingestionService := services.NewIngestionService(st, broadcastService, mirror, ingestionConfig)
	g.Go(func() error {
		ingestionService.Start(ctx)
		return nil
	})

	// === Optional MQTT transport ===
	if cfg.MQTTBroker != "" {
		mqttClient := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})

		subscriber := mqtt.NewSubscriber(
			mqttClient.GetNativeClient(),
			mqtt.SubscriberConfig{
				BatchTopic:  cfg.MQTTTopicBatch,
				SensorTopic: cfg.MQTTTopicSensor,
			},
			ingestionService.BatchChan,
		)
		mqttClient.OnConnect(func(pahomqtt.Client) {
			if err := subscriber.SubscribeAll(); err != nil {
				log.Printf("Failed to subscribe to MQTT topics: %v", err)
			}
		})

		if err := mqttClient.Connect(); err != nil {
			log.Fatalf("Failed to initialize MQTT client: %v", err)
		}
		defer mqttClient.Close()

		publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
			StateTopic: cfg.MQTTTopicState,
		})
		broadcastService.AddSink(publisher)
		g.Go(func() error {
			publisher.Start(ctx)
			return nil
		})
	}

	// Started after every sink is registered
	g.Go(func() error {
		broadcastService.Start(ctx)
		return nil
	})

	// === HTTP server ===
	handler := api.NewHandler(ingestionService, st, reg, http.HandlerFunc(wsHub.ServeWS))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(handler.Routes(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.HTTPAddr, err)
	}

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// === Log startup info ===
	log.Println("=== Battery SOC Service is running ===")
	log.Printf("HTTP: %s", cfg.HTTPAddr)
	log.Printf("Push on write: %v, push interval: %s", cfg.PushOnWrite, cfg.PushInterval)
	if cfg.MQTTBroker != "" {
		log.Printf("MQTT Topics:")
		log.Printf("  - Batch:  %s", cfg.MQTTTopicBatch)
		log.Printf("  - Sensor: %s", cfg.MQTTTopicSensor)
		log.Printf("  - State:  %s", cfg.MQTTTopicState)
	}
	if cfg.ClickHouseAddr != "" {
		log.Printf("ClickHouse mirror: %s/%s", cfg.ClickHouseAddr, cfg.ClickHouseDB)
	}
	log.Println("Press Ctrl+C to exit...")

	if err := g.Wait(); err != nil {
		log.Printf("Service stopped with error: %v", err)
	}

	log.Println("Shutdown complete. Goodbye!")
}
