package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/digitalis-io/kafcat/pkg/logger"
)

// GroupID is the consumer group every kafcat run joins. Offsets committed
// under it are what make consecutive runs resume where the last one stopped.
const GroupID = "kafcat"

type Client struct {
	brokers []string
	config  *sarama.Config
	client  sarama.Client
	group   sarama.ConsumerGroup
}

// SASLConfig holds SASL authentication configuration
type SASLConfig struct {
	Enabled   bool
	Mechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string
	Password  string
	Protocol  string // SASL_PLAINTEXT or SASL_SSL
}

// TLSConfig holds TLS/SSL configuration
type TLSConfig struct {
	Enabled            bool
	CACert             string
	ClientCert         string
	ClientKey          string
	InsecureSkipVerify bool
}

func NewClient(brokers []string) (*Client, error) {
	return NewClientWithAuth(brokers, nil, nil)
}

// NewClientWithAuth connects to the cluster and joins the kafcat consumer
// group, with optional SASL authentication and TLS. Any failure is fatal to
// the caller; there is no retry beyond sarama's own metadata retries.
func NewClientWithAuth(brokers []string, saslConfig *SASLConfig, tlsConfig *TLSConfig) (*Client, error) {
	log := logger.Get()
	log.WithField("brokers", brokers).Debug("Creating new Kafka client")

	config, err := newConfig(saslConfig, tlsConfig)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		log.WithError(err).WithField("brokers", brokers).Error("Failed to connect to cluster")
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	group, err := sarama.NewConsumerGroupFromClient(GroupID, client)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close client after consumer group creation failure")
		}
		log.WithError(err).Error("Failed to join consumer group")
		return nil, fmt.Errorf("failed to join consumer group %s: %w", GroupID, err)
	}

	// Consumer errors are surfaced on a channel; with nobody listening
	// sarama drops them. Keep a reader alive until Close.
	go drainGroupErrors(group.Errors())

	log.WithField("brokers", brokers).Info("Successfully connected to Kafka cluster")
	return &Client{
		brokers: brokers,
		config:  config,
		client:  client,
		group:   group,
	}, nil
}

// drainGroupErrors logs consumer-side errors (fetch failures, offset-commit
// errors) for the life of the group. Returns when the group is closed and
// sarama closes the channel.
func drainGroupErrors(errs <-chan error) {
	log := logger.Get()
	for err := range errs {
		log.WithError(err).Error("Consumer group error")
	}
}

// newConfig builds the sarama configuration. Offsets are committed only by
// the tailer, never automatically, so the committed cursor can't run ahead
// of what was written to the output.
func newConfig(saslConfig *SASLConfig, tlsConfig *TLSConfig) (*sarama.Config, error) {
	log := logger.Get()

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = "kafcat"
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = false
	config.Metadata.Retry.Max = 3
	config.Metadata.Retry.Backoff = 250 * time.Millisecond
	config.Metadata.Timeout = 10 * time.Second

	if saslConfig != nil && saslConfig.Enabled {
		log.WithFields(map[string]interface{}{
			"mechanism": saslConfig.Mechanism,
			"username":  saslConfig.Username,
			"protocol":  saslConfig.Protocol,
		}).Info("Configuring SASL authentication")

		config.Net.SASL.Enable = true
		config.Net.SASL.User = saslConfig.Username
		config.Net.SASL.Password = saslConfig.Password

		switch strings.ToUpper(saslConfig.Mechanism) {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			return nil, fmt.Errorf("unsupported SASL mechanism: %s", saslConfig.Mechanism)
		}

		if strings.ToUpper(saslConfig.Protocol) == "SASL_SSL" {
			config.Net.TLS.Enable = true
		}
	}

	if tlsConfig != nil && tlsConfig.Enabled {
		tc, err := buildTLSConfig(tlsConfig)
		if err != nil {
			return nil, err
		}
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = tc
	}

	return config, nil
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", cfg.CACert)
		}
		tc.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

// HasTopic reports whether the topic exists on the cluster.
func (c *Client) HasTopic(name string) (bool, error) {
	topics, err := c.client.Topics()
	if err != nil {
		return false, fmt.Errorf("failed to list topics: %w", err)
	}
	for _, topic := range topics {
		if topic == name {
			return true, nil
		}
	}
	return false, nil
}

// OldestOffset returns the earliest retained offset of a partition.
func (c *Client) OldestOffset(topic string, partition int32) (int64, error) {
	offset, err := c.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, fmt.Errorf("failed to get oldest offset for %s/%d: %w", topic, partition, err)
	}
	return offset, nil
}

// Consume joins a consumer group session for the given topics and blocks
// until the session ends (rebalance, all claims returning, or ctx done).
func (c *Client) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	return c.group.Consume(ctx, topics, handler)
}

func (c *Client) Close() error {
	log := logger.Get()

	var errs []string
	if err := c.group.Close(); err != nil {
		log.WithError(err).Warn("Failed to close consumer group")
		errs = append(errs, fmt.Sprintf("consumer group: %v", err))
	}
	if err := c.client.Close(); err != nil {
		log.WithError(err).Warn("Failed to close client")
		errs = append(errs, fmt.Sprintf("client: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing client: %s", strings.Join(errs, "; "))
	}
	return nil
}
