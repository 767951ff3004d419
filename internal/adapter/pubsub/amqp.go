package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// AMQPFactory builds watermill publishers and subscribers bound to one topic exchange.
type AMQPFactory struct {
	url      string
	exchange string
	logger   watermill.LoggerAdapter
}

func NewAMQPFactory(url, exchange string, logger watermill.LoggerAdapter) *AMQPFactory {
	return &AMQPFactory{url: url, exchange: exchange, logger: logger}
}

func (f *AMQPFactory) config(queue string) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(f.url, amqp.GenerateQueueNameConstant(queue))
	cfg.Exchange.GenerateName = func(string) string { return f.exchange }
	cfg.Exchange.Type = "topic"
	cfg.Exchange.Durable = true
	cfg.QueueBind.GenerateRoutingKey = func(topic string) string { return topic }
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }
	return cfg
}

// BuildSubscriber declares queue and binds it to the exchange with topic as the routing pattern.
func (f *AMQPFactory) BuildSubscriber(queue string) (message.Subscriber, error) {
	sub, err := amqp.NewSubscriber(f.config(queue), f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp: subscriber for %s: %w", queue, err)
	}
	return sub, nil
}

// BuildPublisher publishes to the exchange using the topic as routing key.
func (f *AMQPFactory) BuildPublisher() (message.Publisher, error) {
	pub, err := amqp.NewPublisher(f.config(""), f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp: publisher on %s: %w", f.exchange, err)
	}
	return pub, nil
}
