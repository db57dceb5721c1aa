package broker

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/cenkalti/backoff/v3"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// nameAttribute is the message attribute carrying the command or event
// name. Subscribers filter on it.
const nameAttribute = "name"

// maxPublishRetries bounds the attempts made to publish a single message.
var maxPublishRetries uint64 = 5

// Dispatcher sends named internal commands to the process layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, body []byte) error
}

// SNSDispatcher publishes commands to a SNS topic.
type SNSDispatcher struct {
	logger   logrus.FieldLogger
	client   snsiface.SNSAPI
	topicARN string
}

var _ Dispatcher = (*SNSDispatcher)(nil)

func NewSNSDispatcher(logger logrus.FieldLogger, client snsiface.SNSAPI, topicARN string) *SNSDispatcher {
	return &SNSDispatcher{logger: logger, client: client, topicARN: topicARN}
}

// Dispatch publishes body, retrying with exponential backoff until it
// succeeds, the retries are exhausted or ctx is done.
func (d *SNSDispatcher) Dispatch(ctx context.Context, name string, body []byte) error {
	return publish(ctx, d.logger, d.client, d.topicARN, name, body, nil)
}

func publish(ctx context.Context, logger logrus.FieldLogger, client snsiface.SNSAPI, topicARN, name string, body []byte, attrs map[string]string) error {
	input := &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: map[string]*sns.MessageAttributeValue{},
	}
	if name != "" {
		input.MessageAttributes[nameAttribute] = stringAttribute(name)
	}
	for k, v := range attrs {
		input.MessageAttributes[k] = stringAttribute(v)
	}
	op := func() error {
		_, err := client.PublishWithContext(ctx, input)
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.WithError(err).WithField("name", name).Warnf("Publish failed, retrying in %s", next)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPublishRetries), ctx)
	return errors.Wrapf(backoff.RetryNotify(op, bo, notify), "publishing %s", name)
}

func stringAttribute(v string) *sns.MessageAttributeValue {
	return &sns.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

// Publisher is the subset of *nats.Conn used by NATSDispatcher.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSDispatcher publishes commands to NATS subjects named after the
// command, below a common prefix.
type NATSDispatcher struct {
	conn   Publisher
	prefix string
}

var _ Dispatcher = (*NATSDispatcher)(nil)

func NewNATSDispatcher(conn Publisher, prefix string) *NATSDispatcher {
	return &NATSDispatcher{conn: conn, prefix: prefix}
}

// ConnectNATS opens a connection that keeps reconnecting for as long as the
// process lives.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	return conn, errors.Wrap(err, "connecting to NATS")
}

// Dispatch publishes body and waits for the server to acknowledge it, so a
// nil error means the command left the process.
func (d *NATSDispatcher) Dispatch(ctx context.Context, name string, body []byte) error {
	subject := name
	if d.prefix != "" {
		subject = d.prefix + "." + name
	}
	if err := d.conn.Publish(subject, body); err != nil {
		return errors.Wrapf(err, "publishing %s", subject)
	}
	return errors.Wrapf(d.conn.FlushWithContext(ctx), "flushing %s", subject)
}
