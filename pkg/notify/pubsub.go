package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/mihaimyh/fitgen/pkg/billing"
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// DefaultPublishTimeout bounds waiting for the publish acknowledgement
const DefaultPublishTimeout = 10 * time.Second

// Topic publishes one message and waits for its server id
type Topic interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// pubsubTopic adapts a Pub/Sub v2 publisher to Topic
type pubsubTopic struct {
	publisher *pubsub.Publisher
}

func (t *pubsubTopic) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	return t.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
}

// PubSubConfig configures a PubSubNotifier
type PubSubConfig struct {
	// PublishTimeout bounds each publish (default: DefaultPublishTimeout)
	PublishTimeout time.Duration

	Clock  quota.Clock
	Logger quota.Logger
}

// PubSubNotifier publishes plan changes to a Pub/Sub topic
type PubSubNotifier struct {
	topic   Topic
	timeout time.Duration
	clock   quota.Clock
	logger  quota.Logger
	closeFn func() error
}

// NewPubSubNotifier publishes through topic
func NewPubSubNotifier(topic Topic, config PubSubConfig) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("topic is required")
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}
	return &PubSubNotifier{
		topic:   topic,
		timeout: config.PublishTimeout,
		clock:   config.Clock,
		logger:  config.Logger,
	}, nil
}

// DialPubSub opens a Pub/Sub client for projectID and publishes to topicID
func DialPubSub(ctx context.Context, projectID, topicID string, config PubSubConfig) (*PubSubNotifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("gcp project id is required")
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, errors.New("pubsub topic is required")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	publisher := client.Publisher(topicID)

	n, err := NewPubSubNotifier(&pubsubTopic{publisher: publisher}, config)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	n.closeFn = func() error {
		publisher.Stop()
		return client.Close()
	}
	return n, nil
}

// PlanChanged implements billing.Notifier
func (n *PubSubNotifier) PlanChanged(ctx context.Context, event billing.WebhookEvent) error {
	msg := NewPlanChangedMessage(event, n.clock.Now())
	data, err := encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	serverID, err := n.topic.Publish(ctx, data, msg.Attributes())
	if err != nil {
		return fmt.Errorf("publish plan change for %s: %w", event.UserID, err)
	}

	n.logger.Debug("plan change published",
		quota.F("event_id", msg.EventID),
		quota.F("message_id", serverID),
		quota.F("user_id", event.UserID))
	return nil
}

// Close stops the publisher and closes the client opened by DialPubSub
func (n *PubSubNotifier) Close() error {
	if n == nil || n.closeFn == nil {
		return nil
	}
	return n.closeFn()
}

var _ billing.Notifier = (*PubSubNotifier)(nil)
