package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errMissingFields = errors.New("both 'to' and 'message' fields are required")

// Sender is the part of the modem used by the MQTT bridge.
type Sender interface {
	SendSMS(ctx context.Context, recipient, message string) error
}

// Bridge subscribes to an MQTT topic and sends every {to,message} payload
// as an SMS.
type Bridge struct {
	Logger   *slog.Logger
	Modem    Sender
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	// SendTimeout bounds one SMS submission.
	SendTimeout time.Duration

	client mqtt.Client
}

// Start connects to the broker. The subscription is renewed on every
// reconnect. Start returns nil without connecting when no broker is set.
func (b *Bridge) Start(ctx context.Context) error {
	if b.Broker == "" {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.Broker)
	opts.SetClientID(b.ClientID)
	if b.Username != "" {
		opts.SetUsername(b.Username)
		opts.SetPassword(b.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.Logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.Logger.Info("MQTT connected", "topic", b.Topic)
		token := c.Subscribe(b.Topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			if err := b.handle(ctx, m.Payload()); err != nil {
				b.Logger.Error("MQTT message dropped", "topic", m.Topic(), "error", err)
			}
		})
		if token.Wait() && token.Error() != nil {
			b.Logger.Error("MQTT subscribe failed", "topic", b.Topic, "error", token.Error())
		}
	})

	b.client = mqtt.NewClient(opts)
	if t := b.client.Connect(); t.Wait() && t.Error() != nil {
		return fmt.Errorf("connect to %s: %w", b.Broker, t.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop() {
	if b.client != nil {
		b.client.Disconnect(500)
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) error {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	if req.To == "" || req.Message == "" {
		return errMissingFields
	}

	timeout := b.SendTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.Modem.SendSMS(ctx, req.To, req.Message); err != nil {
		return err
	}
	b.Logger.Info("SMS sent from MQTT", "to", req.To, "message_length", len(req.Message))
	return nil
}
