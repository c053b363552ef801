// Package mqttin ingests distance readings published by sensors over MQTT
// and feeds them through the same pipeline as POST /send-distance.
package mqttin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
)

// Submitter is the ingestion entry point (alerts.Coordinator).
type Submitter interface {
	SubmitReading(ctx context.Context, distanceCm float64) (alerts.Submission, error)
}

// Config holds broker settings.
type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
}

// Subscriber owns the MQTT client.
type Subscriber struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// Start connects to the broker and subscribes at QoS 1. Messages run until
// ctx is cancelled or Stop is called.
func Start(ctx context.Context, cfg Config, submit Submitter, logger *slog.Logger) (*Subscriber, error) {
	opts := clientOptions(cfg, Handler(ctx, submit, logger), logger)
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, token.Error())
	}
	return &Subscriber{client: c, topic: cfg.Topic, logger: logger}, nil
}

// clientOptions builds the paho options. Each message runs a full dispatch,
// so handlers are not ordered: paho then calls them on their own goroutine
// and a slow provider does not stall the client's inbound traffic.
func clientOptions(cfg Config, handle mqtt.MessageHandler, logger *slog.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(10 * time.Second)
	// Resubscribe after every (re)connect; the broker may not keep the session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(cfg.Topic, 1, handle); token.Wait() && token.Error() != nil {
			logger.Error("MQTT subscribe failed", "topic", cfg.Topic, "error", token.Error())
			return
		}
		logger.Info("MQTT subscribed", "broker", cfg.BrokerURL, "topic", cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	return opts
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
		s.logger.Warn("MQTT unsubscribe failed", "error", token.Error())
	}
	s.client.Disconnect(250)
}

// Handler builds the message callback. Exported for tests.
func Handler(ctx context.Context, submit Submitter, logger *slog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		d, err := ParsePayload(msg.Payload())
		if err != nil {
			logger.Warn("Dropping MQTT reading", "topic", msg.Topic(), "error", err)
			return
		}
		sub, err := submit.SubmitReading(ctx, d)
		if err != nil {
			logger.Error("MQTT reading failed", "distance", d, "error", err)
			return
		}
		logger.Debug("MQTT reading stored", "id", sub.Stored.ID, "alert", sub.Dispatch != nil)
	}
}

// ParsePayload accepts {"distance": n} or a bare number.
func ParsePayload(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return 0, errors.New("empty payload")
	}

	var d float64
	if strings.HasPrefix(text, "{") {
		var body struct {
			Distance *float64 `json:"distance"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return 0, fmt.Errorf("decode payload: %w", err)
		}
		if body.Distance == nil {
			return 0, errors.New("payload has no distance")
		}
		d = *body.Distance
	} else {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("parse distance %q: %w", text, err)
		}
		d = f
	}

	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, errors.New("distance must be finite")
	}
	return d, nil
}
