// Independent reader for cross-checking kafcat output: consumes the topic
// from the beginning under a scratch group and prints payloads with their
// partition and offset, so the committed cursor of the kafcat group can be
// compared against what was actually printed.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func main() {
	var brokers string
	var topic string
	var group string

	flag.StringVar(&brokers, "brokers", "localhost:9092", "Comma-separated list of Kafka broker addresses")
	flag.StringVar(&topic, "topic", "kafcat-test", "Kafka topic to consume from")
	flag.StringVar(&group, "group", "kafcat-verify", "Consumer group ID (keep it off the kafcat group)")
	flag.Parse()

	config := &kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          group,
		"auto.offset.reset": "earliest", // Start reading from the beginning if no offset is saved
	}

	c, err := kafka.NewConsumer(config)
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}
	defer c.Close()

	err = c.SubscribeTopics([]string{topic}, nil)
	if err != nil {
		log.Fatalf("Failed to subscribe to topic: %v", err)
	}

	// Set up a channel to handle OS signals for graceful shutdown
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Verifier started. Press Ctrl+C to exit.")

	run := true
	for run {
		select {
		case sig := <-sigchan:
			fmt.Printf("Caught signal %v: terminating\n", sig)
			run = false
		default:
			ev := c.Poll(100) // Poll for events with a timeout of 100ms
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				fmt.Printf("%s [%d] @%v: %s\n",
					*e.TopicPartition.Topic, e.TopicPartition.Partition, e.TopicPartition.Offset, string(e.Value))
			case kafka.Error:
				log.Printf("Consumer error: %v (%v)\n", e.Code(), e.String())
			}
		}
	}

	fmt.Println("Verifier shut down.")
}
