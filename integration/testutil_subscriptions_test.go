package integration

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// subscriptions is a test util that knows how to verify that messages have been
// sent to SNS topics by asserting the contents of SQS queues that have been
// subscribed to the topics. Use the public Assert* methods to verify.
type subscriptions struct {
	t   *testing.T
	sns *sns.SNS
	sqs *sqs.SQS

	echoQueueURLCommands  string
	echoQueueURLDocuments string
	echoQueueURLError     string
	echoQueueURLInvalid   string
}

const (
	// Name of the queues where published messages are going to be echoed.
	echoQueueNameCommands  = "sns-echo-commands"
	echoQueueNameDocuments = "sns-echo-documents"
	echoQueueNameError     = "sns-echo-error"
	echoQueueNameInvalid   = "sns-echo-invalid"
)

func subscriber(t *testing.T) *subscriptions {
	s := &subscriptions{
		t:   t,
		sns: awsSNSClient,
		sqs: awsSQSClient,
	}

	s.echoQueueURLCommands = s.createQueue(echoQueueNameCommands)
	s.subscribeQueueToTopic(s.createTopic(awsTopicCommands), echoQueueNameCommands)

	s.echoQueueURLDocuments = s.createQueue(echoQueueNameDocuments)
	s.subscribeQueueToTopic(s.createTopic(awsTopicDocuments), echoQueueNameDocuments)

	s.echoQueueURLError = s.createQueue(echoQueueNameError)
	s.subscribeQueueToTopic(s.createTopic(awsTopicError), echoQueueNameError)

	s.echoQueueURLInvalid = s.createQueue(echoQueueNameInvalid)
	s.subscribeQueueToTopic(s.createTopic(awsTopicInvalid), echoQueueNameInvalid)

	return s
}

func (s *subscriptions) createQueue(name string) string {
	s.t.Helper()
	res, err := s.sqs.CreateQueue(&sqs.CreateQueueInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		s.t.Fatalf("Cannot create queue %s: %s", name, err)
	}
	return *res.QueueUrl
}

// createTopic creates the topic named after the last segment of arn.
func (s *subscriptions) createTopic(arn string) string {
	s.t.Helper()
	name := arn[len(fmt.Sprintf("arn:aws:sns:%s:%s:", awsRegion, awsAccountID)):]
	res, err := s.sns.CreateTopic(&sns.CreateTopicInput{
		Name: aws.String(name),
	})
	if err != nil {
		s.t.Fatalf("Cannot create topic %s: %s", name, err)
	}
	return *res.TopicArn
}

// subscribeQueueToTopic subscribes a SQS queue to a SNS topic.
func (s *subscriptions) subscribeQueueToTopic(topicARN, queueName string) {
	s.t.Helper()
	endpoint := fmt.Sprintf("arn:aws:sqs:%s:%s:%s", awsRegion, awsAccountID, queueName)
	_, err := s.sns.Subscribe(&sns.SubscribeInput{
		TopicArn: aws.String(topicARN),
		Protocol: aws.String("sqs"),
		Endpoint: aws.String(endpoint),
		Attributes: map[string]*string{
			"RawMessageDelivery": aws.String("true"),
		},
	})
	if err != nil {
		s.t.Fatal(err)
	}
}

func (s *subscriptions) receiveMessages(queueURL string, wait int64) []*sqs.Message {
	s.t.Helper()
	res, err := s.sqs.ReceiveMessage(&sqs.ReceiveMessageInput{
		MaxNumberOfMessages:   aws.Int64(1),
		QueueUrl:              aws.String(queueURL),
		WaitTimeSeconds:       aws.Int64(wait),
		MessageAttributeNames: aws.StringSlice([]string{sqs.QueueAttributeNameAll}),
	})
	if err != nil {
		s.t.Fatal(err)
	}
	return res.Messages
}

func (s *subscriptions) deleteMessage(t *testing.T, queueURL string, m *sqs.Message) {
	t.Helper()
	_, err := s.sqs.DeleteMessage(&sqs.DeleteMessageInput{
		ReceiptHandle: m.ReceiptHandle,
		QueueUrl:      aws.String(queueURL),
	})
	if err != nil {
		t.Fatal("Cannot delete the message:", err)
	}
}

func (s *subscriptions) cleanUp() {
	s.t.Helper()

	// Delete topic subscriptions.
	res, err := awsSNSClient.ListSubscriptions(&sns.ListSubscriptionsInput{})
	if err != nil {
		s.t.Fatal("Cannot list subscriptions:", err)
	}
	for _, sub := range res.Subscriptions {
		awsSNSClient.Unsubscribe(&sns.UnsubscribeInput{
			SubscriptionArn: sub.SubscriptionArn,
		})
	}

	purgeQueue(s.t, s.echoQueueURLCommands)
	purgeQueue(s.t, s.echoQueueURLDocuments)
	purgeQueue(s.t, s.echoQueueURLError)
	purgeQueue(s.t, s.echoQueueURLInvalid)
}

// Queue observability helpers.

// assertMessageReceived waits for a message in queueURL and returns it. The
// body is compared with message unless message is empty.
func (s *subscriptions) assertMessageReceived(queueURL, message string) *sqs.Message {
	s.t.Helper()
	msgs := s.receiveMessages(queueURL, 10)
	if len(msgs) < 1 {
		s.t.Error("Message not received in queue", queueURL)
		return nil
	}
	s.deleteMessage(s.t, queueURL, msgs[0])
	if have, want := *msgs[0].Body, message; message != "" && have != want {
		s.t.Errorf("Unexpected message received in queue %s; have %+v, want %+v", queueURL, have, want)
	}
	return msgs[0]
}

func (s *subscriptions) assertQueueIsEmpty(queueURL string) {
	s.t.Helper()
	count, _ := strconv.Atoi(s.countQueueItems(queueURL))
	if count > 0 {
		s.t.Fatalf("Queue %s is not empty", queueURL)
	}
}

func (s *subscriptions) countQueueItems(queueURL string) string {
	s.t.Helper()
	res, err := awsSQSClient.GetQueueAttributes(&sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []*string{
			aws.String("ApproximateNumberOfMessages"),
		},
	})
	if err != nil {
		s.t.Fatal("Cannot read queue attributes:", err)
	}
	return *res.Attributes["ApproximateNumberOfMessages"]
}

// Command topic.

func (s *subscriptions) AssertCommandReceived() *sqs.Message {
	s.t.Helper()
	return s.assertMessageReceived(s.echoQueueURLCommands, "")
}

func (s *subscriptions) AssertCommandQueueIsEmpty() {
	s.t.Helper()
	s.assertQueueIsEmpty(s.echoQueueURLCommands)
}

// Document notification topic.

func (s *subscriptions) AssertDocumentReceived() *sqs.Message {
	s.t.Helper()
	return s.assertMessageReceived(s.echoQueueURLDocuments, "")
}

func (s *subscriptions) AssertDocumentQueueIsEmpty() {
	s.t.Helper()
	s.assertQueueIsEmpty(s.echoQueueURLDocuments)
}

// Error message topic.

func (s *subscriptions) AssertErrorMessageReceived(message string) *sqs.Message {
	s.t.Helper()
	return s.assertMessageReceived(s.echoQueueURLError, message)
}

func (s *subscriptions) AssertErrorQueueIsEmpty() {
	s.t.Helper()
	s.assertQueueIsEmpty(s.echoQueueURLError)
}

// Invalid message topic.

func (s *subscriptions) AssertInvalidMessageReceived(message string) *sqs.Message {
	s.t.Helper()
	return s.assertMessageReceived(s.echoQueueURLInvalid, message)
}

func (s *subscriptions) AssertInvalidQueueIsEmpty() {
	s.t.Helper()
	s.assertQueueIsEmpty(s.echoQueueURLInvalid)
}

// Incoming event queue.

func (s *subscriptions) AssertIncomingQueueIsEmpty() {
	s.t.Helper()
	s.assertQueueIsEmpty(awsQueueEvents)
}
