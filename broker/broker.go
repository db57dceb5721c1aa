package broker

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/gridexchange/edi-gateway/outgoing/calculation"
)

const (
	// maxNumberOfMessages is the number of messages that we want to receive
	// from SQS incoming batches.
	maxNumberOfMessages = 1

	// waitTimeSeconds is the longest we're waiting on each SQS receive poll.
	waitTimeSeconds = 1

	// errorAttribute carries the handler failure of messages sent to the
	// error topic.
	errorAttribute = "error"
)

// errSeen is returned by openMessage for events already processed.
var errSeen = errors.New("event seen before")

// Broker consumes calculation events from a SQS queue.
//
// Messages are received from sqsQueueURL and sent to an internal channel
// (messages). The channel is unbuffered so the receiver controls how often we
// are going to receive from SQS. Each message carries the event name in its
// "name" attribute and the protobuf payload, base64 encoded, in its body.
//
// The message processor will:
//
// * Decode the event according to its name.
//
// * Reject events that have been received before.
//
// * Run the handler subscribed to the event name and capture the returned
// error.
//
// Undecodable messages are sent to the invalid topic and events whose handler
// failed are sent to the error topic. Messages are deleted from SQS as soon
// as they're processed, including the failed ones.
type Broker struct {
	logger             logrus.FieldLogger
	sqsClient          sqsiface.SQSAPI
	sqsQueueURL        string
	snsClient          snsiface.SNSAPI
	snsTopicInvalidARN string
	snsTopicErrorARN   string
	ctx                context.Context
	cancel             context.CancelFunc
	messages           chan *sqs.Message
	stop               chan chan struct{}
	processorDone      chan struct{}
	inflight           sync.WaitGroup
	incomingEvents     prometheus.Counter
	subscriptions
	repository
}

// New returns a usable Broker. The processed-event repository is disabled
// when dynamodbTable is empty.
func New(
	logger logrus.FieldLogger,
	sqsClient sqsiface.SQSAPI, sqsQueueURL string,
	snsClient snsiface.SNSAPI, snsTopicInvalidARN, snsTopicErrorARN string,
	dynamodbClient dynamodbiface.DynamoDBAPI, dynamodbTable string,
	incomingEvents prometheus.Counter) *Broker {
	b := &Broker{
		logger:             logger,
		sqsClient:          sqsClient,
		sqsQueueURL:        sqsQueueURL,
		snsClient:          snsClient,
		snsTopicInvalidARN: snsTopicInvalidARN,
		snsTopicErrorARN:   snsTopicErrorARN,
		messages:           make(chan *sqs.Message),
		stop:               make(chan chan struct{}),
		processorDone:      make(chan struct{}),
		incomingEvents:     incomingEvents,
		repository:         repository{client: dynamodbClient, table: dynamodbTable},
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.subscriptions.s = make(map[string]EventHandler)

	go b.processor()

	return b
}

// Run starts the processing.
func (b *Broker) Run() {
	b.loop()
}

// processor of delivered messages. Decoding and the repository check run
// before the next message is accepted, the handler runs on its own goroutine.
func (b *Broker) processor() {
	defer close(b.processorDone)
	for m := range b.messages {
		ev, err := b.openMessage(m)
		if err != nil {
			b.deleteMessage(m.ReceiptHandle)
			continue
		}
		b.inflight.Add(1)
		go func(m *sqs.Message) {
			defer b.inflight.Done()
			b.processMessage(m, ev)
		}(m)
	}
}

// loop sends messages received from sqsQueueURL to the internal messages
// channel.
func (b *Broker) loop() {
	for {
		select {
		case ch := <-b.stop:
			close(b.messages)
			<-b.processorDone
			b.inflight.Wait()
			b.cancel()
			close(ch)
			return
		default:
			out, err := b.sqsClient.ReceiveMessageWithContext(b.ctx, &sqs.ReceiveMessageInput{
				QueueUrl:              aws.String(b.sqsQueueURL),
				MaxNumberOfMessages:   aws.Int64(maxNumberOfMessages),
				WaitTimeSeconds:       aws.Int64(waitTimeSeconds),
				MessageAttributeNames: aws.StringSlice([]string{sqs.QueueAttributeNameAll}),
			})
			if err != nil {
				b.logger.Errorf("Error receiving a message from SQS: %s", err)
				time.Sleep(1 * time.Second)
			} else {
				for _, m := range out.Messages {
					b.messages <- m
				}
			}
		}
	}
}

// openMessage decodes the event carried by m and stores its id in the
// processed-event repository.
func (b *Broker) openMessage(m *sqs.Message) (calculation.Event, error) {
	b.incomingEvents.Inc()

	name := messageName(m)
	logger := b.logger.WithFields(logrus.Fields{"messageID": aws.StringValue(m.MessageId), "event": name})

	data, err := base64.StdEncoding.DecodeString(aws.StringValue(m.Body))
	if err != nil {
		err = errors.Wrap(err, "decoding body")
		b.invalidMessage(logger, m, err)
		return nil, err
	}
	ev, err := calculation.Decode(name, data)
	if err != nil {
		b.invalidMessage(logger, m, err)
		return nil, err
	}

	seen, err := b.seenBeforeOrStore(b.ctx, aws.StringValue(m.MessageId), name)
	if err != nil {
		logger.Warning("Processed event repository check failed: ", err)
		return nil, err
	}
	if seen {
		logger.Warning("Event found in the processed event repository.")
		return nil, errSeen
	}

	return ev, nil
}

// processMessage hands the event to its handler. The message is deleted from
// the queue once the handler returns.
func (b *Broker) processMessage(m *sqs.Message, ev calculation.Event) {
	logger := b.logger.WithFields(logrus.Fields{
		"messageID": aws.StringValue(m.MessageId),
		"event":     ev.EventName(),
	})

	var (
		err error
		wg  sync.WaitGroup
	)

	// Run the handler in panic recovery mode.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler goroutine panic! %s %s", r, debug.Stack())
			}
		}()
		err = b.handleEvent(b.ctx, ev)
	}()
	wg.Wait()

	if err != nil {
		logger.Error("Handler failure: ", err)
		b.errorMessage(logger, m, err)
		return
	}

	b.deleteMessage(m.ReceiptHandle)
}

// deleteMessage does best effort to delete a message from SQS.
func (b *Broker) deleteMessage(receiptHandle *string) {
	_, err := b.sqsClient.DeleteMessageWithContext(b.ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.sqsQueueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		b.logger.Error("Message could not be removed from SQS: ", err)
	}
}

// invalidMessage puts a message into the invalid topic.
func (b *Broker) invalidMessage(logger logrus.FieldLogger, m *sqs.Message, cause error) {
	arn := b.snsTopicInvalidARN
	if arn == "" {
		logger.WithField("error-queue", "invalid[disabled]").Warn(cause)
		return
	}
	err := publish(b.ctx, logger, b.snsClient, arn, messageName(m), []byte(aws.StringValue(m.Body)),
		map[string]string{errorAttribute: cause.Error()})
	if err != nil {
		logger.Error("A message could not be sent to the invalid topic: ", err)
		return
	}
	logger.Debug("Message sent to the invalid topic")
}

// errorMessage puts a message into the error topic and removes it from the
// queue.
func (b *Broker) errorMessage(logger logrus.FieldLogger, m *sqs.Message, cause error) {
	defer b.deleteMessage(m.ReceiptHandle)

	arn := b.snsTopicErrorARN
	if arn == "" {
		logger.WithField("error-queue", "error[disabled]").Warn(cause)
		return
	}
	err := publish(b.ctx, logger, b.snsClient, arn, messageName(m), []byte(aws.StringValue(m.Body)),
		map[string]string{errorAttribute: cause.Error()})
	if err != nil {
		logger.Error("A message could not be sent to the error topic: ", err)
		return
	}
	logger.Debug("Message sent to the error topic")
}

// Stop blocks until the broker terminates and the handlers in flight return.
func (b *Broker) Stop() {
	ch := make(chan struct{})
	b.stop <- ch
	<-ch
}

func messageName(m *sqs.Message) string {
	attr, ok := m.MessageAttributes[nameAttribute]
	if !ok || attr == nil {
		return ""
	}
	return aws.StringValue(attr.StringValue)
}
