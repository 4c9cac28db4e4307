// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package bus wraps the MQTT connection the controller publishes and
// subscribes on. Production code talks to the broker through autopaho's
// reconnecting connection manager; tests inject a fake Client instead of
// dialing a real broker (the same injectable-dependency shape the teacher
// uses for its command runner).
package bus

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"github.com/offish/hydroplant-controller/internal/topics"
)

// Message is one inbound publish, with transport metadata the router needs
// to resolve a topic back to an entity.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes one inbound Message.
type Handler func(Message)

// Client is the bus surface the rest of the controller depends on. It is
// deliberately narrow: connect, publish, subscribe, and register a single
// inbound handler.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) error
	Unsubscribe(ctx context.Context, topics ...string) error
	SetHandler(h Handler)
	Disconnect(ctx context.Context) error
}

// Config configures the underlying MQTT connection.
type Config struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
}

func (c Config) brokerURL() (*url.URL, error) {
	u := &url.URL{Scheme: "mqtt", Host: fmt.Sprintf("%s:%d", c.Host, c.Port)}
	return u, nil
}

// autopahoClient implements Client over eclipse/paho.golang's autopaho
// connection manager, which reconnects and resubscribes automatically.
type autopahoClient struct {
	cfg     Config
	log     zerolog.Logger
	cm      *autopaho.ConnectionManager
	handler Handler
	subs    []string
}

// New constructs a production Client backed by autopaho.
func New(cfg Config, log zerolog.Logger) Client {
	return &autopahoClient{cfg: cfg, log: log}
}

func (c *autopahoClient) Connect(ctx context.Context) error {
	serverURL, err := c.cfg.brokerURL()
	if err != nil {
		return fmt.Errorf("bus: resolving broker url: %w", err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{serverURL},
		KeepAlive:         30,
		ConnectRetryDelay: 2 * time.Second,
		WillMessage: &paho.WillMessage{
			Topic:   topics.DisconnectMaster,
			Payload: []byte{},
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.log.Info().Str("broker", serverURL.String()).Msg("bus connection established")
			if len(c.subs) > 0 {
				if _, err := cm.Subscribe(ctx, subscribePacket(c.subs)); err != nil {
					c.log.Error().Err(err).Msg("bus: resubscribe after reconnect failed")
				}
			}
		},
		OnConnectError: func(err error) {
			c.log.Warn().Err(err).Msg("bus: connect attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if c.handler != nil {
						c.handler(Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload})
					}
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.log.Error().Err(err).Msg("bus: client error")
			},
		},
	}

	if c.cfg.Username != "" {
		cliCfg.ConnectUsername = c.cfg.Username
		cliCfg.ConnectPassword = []byte(c.cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("bus: creating connection manager: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("bus: awaiting initial connection: %w", err)
	}

	c.cm = cm
	return nil
}

func subscribePacket(topics []string) *paho.Subscribe {
	sub := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, len(topics))}
	for i, t := range topics {
		sub.Subscriptions[i] = paho.SubscribeOptions{Topic: t, QoS: 1}
	}
	return sub
}

func (c *autopahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	return nil
}

func (c *autopahoClient) Subscribe(ctx context.Context, topics ...string) error {
	c.subs = append(c.subs, topics...)
	if c.cm == nil {
		return nil
	}
	_, err := c.cm.Subscribe(ctx, subscribePacket(topics))
	if err != nil {
		return fmt.Errorf("bus: subscribe: %w", err)
	}
	return nil
}

func (c *autopahoClient) Unsubscribe(ctx context.Context, topics ...string) error {
	c.subs = removeAll(c.subs, topics)
	if c.cm == nil {
		return nil
	}
	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: topics})
	if err != nil {
		return fmt.Errorf("bus: unsubscribe: %w", err)
	}
	return nil
}

func removeAll(list, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, t := range remove {
		drop[t] = struct{}{}
	}
	out := list[:0:0]
	for _, t := range list {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func (c *autopahoClient) SetHandler(h Handler) {
	c.handler = h
}

func (c *autopahoClient) Disconnect(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}
