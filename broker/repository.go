package broker

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// processedEvent is the record kept for every event taken from the queue.
type processedEvent struct {
	ID         string    `dynamodbav:"ID"`
	Event      string    `dynamodbav:"event"`
	ReceivedAt time.Time `dynamodbav:"receivedAt"`
}

type repository struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// seenBeforeOrStore decides whether an event is known to this repository and
// records it otherwise. The check and the write are a single conditional put.
func (r *repository) seenBeforeOrStore(ctx context.Context, id, event string) (bool, error) {
	if r.client == nil || r.table == "" {
		return false, nil
	}
	if id == "" {
		return false, errors.New("event has no id")
	}
	item, err := dynamodbattribute.MarshalMap(processedEvent{
		ID:         id,
		Event:      event,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, errors.Wrap(err, "marshalling processed event")
	}
	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ID)"),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "storing processed event")
	}
	return false, nil
}
