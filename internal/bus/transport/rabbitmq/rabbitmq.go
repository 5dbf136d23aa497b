// Package rabbitmq provides the primary AMQP transport for the event bus.
//
// All events flow through one shared durable topic exchange. Routing keys
// are the dot-separated event topics (e.g. "case.status.changed") and every
// consuming service binds its own durable queue per routing key, which is
// how fan-out across services is achieved.
package rabbitmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/curalink/curalink/internal/bus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ExchangeName is the single topic exchange shared by the whole platform.
const ExchangeName = "recovery_system_exchange"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.Register(TransportName, Build)
}

// QueueName derives the durable queue name for a (service, routing key)
// pair, following the platform convention "<service>_<routing_key>_queue"
// with dots replaced by underscores.
func QueueName(service, routingKey string) string {
	return fmt.Sprintf("%s_%s_queue", service, strings.ReplaceAll(routingKey, ".", "_"))
}

// Build creates a new RabbitMQ transport. A failed broker connection here is
// fatal for the owning service: a service that cannot reach the bus must not
// start serving traffic that depends on eventing.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	amqpConfig := topicExchangeConfig(cfg.GetServiceName())

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// topicExchangeConfig wires the AMQP topology mandated by the platform:
// one durable topic exchange, durable non-exclusive queues named per
// consuming service, exact routing-key bindings (no wildcards), publisher
// confirms with persistent messages and the mandatory flag, and a prefetch
// of exactly one unacknowledged message per subscription channel so each
// queue is processed strictly sequentially.
func topicExchangeConfig(serviceName string) amqp.Config {
	return amqp.Config{
		Marshaler: amqp.DefaultMarshaler{},

		Exchange: amqp.ExchangeConfig{
			GenerateName: func(topic string) string {
				return ExchangeName
			},
			Type:    "topic",
			Durable: true,
		},

		Queue: amqp.QueueConfig{
			GenerateName: func(topic string) string {
				return QueueName(serviceName, topic)
			},
			Durable: true,
		},

		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(topic string) string {
				return topic
			},
		},

		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string {
				return topic
			},
			Mandatory:       true,
			ConfirmDelivery: true,
		},

		Consume: amqp.ConsumeConfig{
			Qos: amqp.QosConfig{
				PrefetchCount: 1,
			},
		},

		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}
