// Package replay sources the book from a Kafka topic holding recorded raw
// feed payloads instead of the live websocket. One partition, consumed
// from the oldest offset, preserves the original arrival order.
package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Consumer implements the same source contract as the websocket client.
type Consumer struct {
	brokers []string
	topic   string
	log     zerolog.Logger

	mu        sync.Mutex
	client    sarama.Consumer
	partition sarama.PartitionConsumer
	stopped   bool
}

func New(brokers []string, topic string, log zerolog.Logger) *Consumer {
	return &Consumer{brokers: brokers, topic: topic, log: log}
}

// Run consumes partition 0 from the oldest offset and invokes handle with
// each recorded payload until the partition closes or Stop is called.
func (c *Consumer) Run(ctx context.Context, handle func([]byte)) error {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewConsumer(c.brokers, cfg)
	if err != nil {
		return fmt.Errorf("replay: connect: %w", err)
	}
	partition, err := client.ConsumePartition(c.topic, 0, sarama.OffsetOldest)
	if err != nil {
		client.Close()
		return fmt.Errorf("replay: consume %s: %w", c.topic, err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		partition.AsyncClose()
		client.Close()
		return nil
	}
	c.client = client
	c.partition = partition
	c.mu.Unlock()
	c.log.Info().Str("topic", c.topic).Msg("replaying recorded feed")

	for {
		select {
		case msg, ok := <-partition.Messages():
			if !ok {
				return nil
			}
			handle(msg.Value)
		case err, ok := <-partition.Errors():
			if !ok {
				return nil
			}
			// Keep consuming; a broker hiccup only stalls freshness.
			c.log.Error().Err(err).Msg("replay consume failed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop closes the partition consumer, unblocking Run.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.partition != nil {
		c.partition.AsyncClose()
		c.partition = nil
	}
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
}
