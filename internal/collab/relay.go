package collab

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannelPrefix = "notebook:"

// relayEnvelope wraps a room frame with the publishing instance's ID so a
// node can skip frames it published itself.
type relayEnvelope struct {
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

var _ Relay = (*RedisRelay)(nil)

// RedisRelay distributes room broadcasts across service instances over
// Redis pub/sub, one channel per notebook.
type RedisRelay struct {
	client     *redis.Client
	instanceID string
	pubsub     *redis.PubSub
	logger     *zap.SugaredLogger
}

func NewRedisRelay(client *redis.Client, logger *zap.SugaredLogger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisRelay{
		client:     client,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, notebookID string, frame []byte) error {
	payload, err := json.Marshal(relayEnvelope{
		Instance: r.instanceID,
		Frame:    frame,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, relayChannelPrefix+notebookID, payload).Err()
}

// Run subscribes to every notebook channel and feeds remote-origin frames to
// deliver until the context is cancelled.
func (r *RedisRelay) Run(ctx context.Context, deliver func(notebookID string, frame []byte)) {
	r.pubsub = r.client.PSubscribe(ctx, relayChannelPrefix+"*")

	ch := r.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			notebookID := strings.TrimPrefix(msg.Channel, relayChannelPrefix)

			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Errorw("invalid relay payload", "channel", msg.Channel, "error", err)
				continue
			}
			if env.Instance == r.instanceID {
				continue
			}
			deliver(notebookID, env.Frame)

		case <-ctx.Done():
			return
		}
	}
}

func (r *RedisRelay) Close() error {
	if r.pubsub != nil {
		return r.pubsub.Close()
	}
	return nil
}
