package sink

import (
	"context"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KafkaConfig holds configuration for Kafka producer
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	// SASL config
	SASLMechanism string
	SASLUser      string
	SASLPassword  string

	// TLS config
	TLSCAPath     string
	TLSSkipVerify bool
}

// KafkaSink produces batches to Kafka keyed by session id, so every batch
// of a session lands on one partition in order.
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
	log      *zap.Logger
}

// NewKafkaSinkFromEnv creates a KafkaSink from environment variables
func NewKafkaSinkFromEnv(logger *zap.Logger) *KafkaSink {
	brokers := splitList(getEnvOr("KAFKA_BROKERS", "localhost:9092"))
	config := KafkaConfig{
		Brokers:       brokers,
		Topic:         getEnvOr("KAFKA_TOPIC", "passivecaptcha.batches"),
		Acks:          getEnvOr("KAFKA_ACKS", "all"),
		Compression:   getEnvOr("KAFKA_COMPRESSION", ""),
		SASLMechanism: getEnvOr("KAFKA_SASL_MECHANISM", ""),
		SASLUser:      getEnvOr("KAFKA_SASL_USER", ""),
		SASLPassword:  getEnvOr("KAFKA_SASL_PASSWORD", ""),
		TLSCAPath:     getEnvOr("KAFKA_TLS_CA", ""),
		TLSSkipVerify: getBoolEnv("KAFKA_TLS_SKIP_VERIFY", false),
	}
	return &KafkaSink{config: config, log: named(logger, "kafka")}
}

// NewKafkaSink creates a KafkaSink with explicit configuration
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		config: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
			Acks:    "all",
		},
		log: named(nil, "kafka"),
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) configMap() kafka.ConfigMap {
	configMap := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"batch.size":        16384,
		"linger.ms":         10,
	}
	if s.config.Compression != "" {
		configMap["compression.type"] = s.config.Compression
	}
	if s.config.SASLMechanism != "" {
		configMap["security.protocol"] = "SASL_SSL"
		configMap["sasl.mechanism"] = s.config.SASLMechanism
		if s.config.SASLUser != "" {
			configMap["sasl.username"] = s.config.SASLUser
		}
		if s.config.SASLPassword != "" {
			configMap["sasl.password"] = s.config.SASLPassword
		}
	}
	if s.config.TLSCAPath != "" {
		if s.config.SASLMechanism == "" {
			configMap["security.protocol"] = "SSL"
		}
		configMap["ssl.ca.location"] = s.config.TLSCAPath
	}
	if s.config.TLSSkipVerify {
		configMap["ssl.endpoint.identification.algorithm"] = "none"
	}
	return configMap
}

func (s *KafkaSink) Start(ctx context.Context) error {
	cm := s.configMap()
	producer, err := kafka.NewProducer(&cm)
	if err != nil {
		return errors.Wrap(err, "failed to create Kafka producer")
	}
	s.producer = producer
	go s.handleDeliveryReports(ctx)
	return nil
}

func (s *KafkaSink) message(b Batch) (*kafka.Message, error) {
	value, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize batch")
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(b.SessionID()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "batch_id", Value: []byte(b.BatchID)},
			{Key: "kind", Value: []byte(b.Kind)},
			{Key: "schema", Value: []byte("v1")},
		},
	}, nil
}

func (s *KafkaSink) Enqueue(b Batch) error {
	if s.producer == nil {
		return errors.New("kafka producer not initialized")
	}
	msg, err := s.message(b)
	if err != nil {
		return err
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return errors.Wrap(err, "failed to produce message")
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	remaining := s.producer.Flush(10 * 1000)
	s.producer.Close()
	if remaining > 0 {
		return errors.Errorf("failed to flush %d remaining messages", remaining)
	}
	return nil
}

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					s.log.Warn("delivery failed", zap.Error(e.TopicPartition.Error))
				}
			case kafka.Error:
				s.log.Warn("client error", zap.Error(e))
			}
		}
	}
}

func named(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named("sink." + name)
}
