package kafka

import (
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// NewSyncProducer builds a producer tuned for small, frequent event records.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "collab-service"

	return sarama.NewSyncProducer(brokers, config)
}

// EventArchiver publishes coordinator event frames to a Kafka topic, keyed
// by notebook so one notebook's events stay on one partition. It implements
// collab.EventArchiver; failures are logged and dropped, never surfaced to
// the rooms.
type EventArchiver struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.SugaredLogger
}

func NewEventArchiver(producer sarama.SyncProducer, topic string, logger *zap.SugaredLogger) *EventArchiver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventArchiver{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (a *EventArchiver) Archive(notebookID string, frame []byte) {
	_, _, err := a.producer.SendMessage(&sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(notebookID),
		Value: sarama.ByteEncoder(frame),
	})
	if err != nil {
		a.logger.Errorw("failed to archive event", "notebookID", notebookID, "error", err)
	}
}

func (a *EventArchiver) Close() error {
	return a.producer.Close()
}
