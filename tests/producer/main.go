// Seeds a topic with sequential payloads so kafcat runs can be checked by
// hand: one-shot drain, -b rewind, and the committed-cursor idempotence of
// back-to-back runs.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func main() {
	var brokers string
	var topic string
	var count int
	var prefix string
	var saslEnabled bool
	var saslMechanism string
	var saslUsername string
	var saslPassword string
	var securityProtocol string

	flag.StringVar(&brokers, "brokers", "localhost:9092", "Comma-separated list of Kafka broker addresses")
	flag.StringVar(&topic, "topic", "kafcat-test", "Kafka topic to produce to")
	flag.IntVar(&count, "count", 10, "Number of messages to produce")
	flag.StringVar(&prefix, "prefix", "msg", "Payload prefix; payloads are <prefix>-<n>")

	// SASL-related flags
	flag.BoolVar(&saslEnabled, "sasl", false, "Enable SASL authentication")
	flag.StringVar(&saslMechanism, "sasl-mechanism", "PLAIN", "SASL mechanism (e.g., PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)")
	flag.StringVar(&saslUsername, "sasl-username", "", "SASL username")
	flag.StringVar(&saslPassword, "sasl-password", "", "SASL password")
	flag.StringVar(&securityProtocol, "security-protocol", "SASL_PLAINTEXT", "Security protocol (SASL_PLAINTEXT or SASL_SSL)")

	flag.Parse()

	config := &kafka.ConfigMap{
		"bootstrap.servers": brokers,
	}

	if saslEnabled {
		config.SetKey("security.protocol", securityProtocol)
		config.SetKey("sasl.mechanisms", saslMechanism)
		config.SetKey("sasl.username", saslUsername)
		config.SetKey("sasl.password", saslPassword)
	}

	p, err := kafka.NewProducer(config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer p.Close()

	// Handle delivery reports
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Printf("Delivery failed: %v\n", ev.TopicPartition.Error)
				} else {
					fmt.Printf("Delivered message to %v\n", ev.TopicPartition)
				}
			}
		}
	}()

	for i := 0; i < count; i++ {
		value := fmt.Sprintf("%s-%d", prefix, i)
		err := p.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
			Value:          []byte(value),
		}, nil)

		if err != nil {
			log.Printf("Failed to produce message: %v", err)
		} else {
			fmt.Printf("Queued message for topic %s: %s\n", topic, value)
		}
	}

	// Ensure all queued messages are delivered before shutdown
	fmt.Println("Flushing pending messages...")
	p.Flush(15 * 1000)

	fmt.Println("Producer done.")
}
