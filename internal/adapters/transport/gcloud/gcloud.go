// Package gcloud adapts Google Cloud Pub/Sub to the transport ports.
// Topic and subscription are created on first use; AlreadyExists is
// tolerated so multiple instances can race on startup.
package gcloud

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rd-openday18/pubsub/internal/ports"
)

type Config struct {
	ProjectID       string `yaml:"project_id"`
	Topic           string `yaml:"topic"`
	Subscription    string `yaml:"subscription"`
	CredentialsFile string `yaml:"credentials_file"`

	// MaxOutstanding caps unacked deliveries held by the subscriber.
	MaxOutstanding int `yaml:"max_outstanding"`
}

func (c *Config) ApplyDefaults() {
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = 100
	}
}

func newClient(ctx context.Context, cfg Config) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, id string) (*pubsub.Topic, error) {
	t, err := client.CreateTopic(ctx, id)
	if err == nil {
		return t, nil
	}
	if status.Code(err) == codes.AlreadyExists {
		return client.Topic(id), nil
	}
	return nil, fmt.Errorf("create topic %q: %w", id, err)
}

// Publisher publishes envelope bytes to one topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	topic, err := ensureTopic(ctx, client, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish blocks until the service confirms the message or ctx
// expires. A timeout surfaces as a retryable error to the pump.
func (p *Publisher) Publish(ctx context.Context, data []byte) error {
	res := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Subscriber streams deliveries from one subscription.
type Subscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

func NewSubscriber(ctx context.Context, cfg Config) (*Subscriber, error) {
	cfg.ApplyDefaults()
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	topic, err := ensureTopic(ctx, client, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, err
	}

	sub, err := client.CreateSubscription(ctx, cfg.Subscription, pubsub.SubscriptionConfig{Topic: topic})
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			client.Close()
			return nil, fmt.Errorf("create subscription %q: %w", cfg.Subscription, err)
		}
		sub = client.Subscription(cfg.Subscription)
	}
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding

	return &Subscriber{client: client, sub: sub}, nil
}

func (s *Subscriber) Receive(ctx context.Context, handle func(context.Context, ports.Delivery)) error {
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		handle(ctx, ports.Delivery{
			ID:   m.ID,
			Data: m.Data,
			Ack:  m.Ack,
			Nack: m.Nack,
		})
	})
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}

var (
	_ ports.Publisher  = (*Publisher)(nil)
	_ ports.Subscriber = (*Subscriber)(nil)
)
