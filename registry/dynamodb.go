package registry

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// maxTransactItems is the largest number of items DynamoDB accepts in one
// TransactWriteItems call.
const maxTransactItems = 25

const conditionalCheckFailed = "ConditionalCheckFailed"

// registryItem is an id stored in the registry table. The table's hash key is
// "ID", which combines the scope, the sender and the id.
type registryItem struct {
	ID           string `dynamodbav:"ID"`
	Scope        string `dynamodbav:"scope"`
	SenderID     string `dynamodbav:"senderID"`
	Value        string `dynamodbav:"value"`
	RegisteredAt string `dynamodbav:"registeredAt"`
}

func itemKey(e entry) string {
	return e.scope.String() + "|" + e.senderID + "|" + e.id
}

// DynamoDB is a registry stored in a DynamoDB table. Ids are written when
// they are registered, guarded by attribute_not_exists conditions; rolling
// back deletes them again.
type DynamoDB struct {
	logger logrus.FieldLogger
	client dynamodbiface.DynamoDBAPI
	table  string
}

var _ Registry = (*DynamoDB)(nil)

func NewDynamoDB(logger logrus.FieldLogger, client dynamodbiface.DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{logger: logger, client: client, table: table}
}

func (r *DynamoDB) MessageIDExists(ctx context.Context, senderID, messageID string) (bool, error) {
	return r.exists(ctx, entry{ScopeMessage, senderID, messageID})
}

func (r *DynamoDB) TransactionIDExists(ctx context.Context, senderID, transactionID string) (bool, error) {
	return r.exists(ctx, entry{ScopeTransaction, senderID, transactionID})
}

func (r *DynamoDB) exists(ctx context.Context, e entry) (bool, error) {
	output, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(itemKey(e))},
		},
	})
	if err != nil {
		return false, errors.Wrapf(err, "looking up %s id", e.scope)
	}
	return output.Item != nil, nil
}

func (r *DynamoDB) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &dynamoTx{r: r}, nil
}

type dynamoTx struct {
	r        *DynamoDB
	reserved []entry
	done     bool
}

// Register writes the ids in batches of maxTransactItems. Each batch is
// atomic; when a later batch fails the earlier ones are deleted again.
func (tx *dynamoTx) Register(ctx context.Context, senderID, messageID string, transactionIDs []string) error {
	if tx.done {
		return ErrTxDone
	}
	es, err := entries(senderID, messageID, transactionIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var written []entry
	for start := 0; start < len(es); start += maxTransactItems {
		end := start + maxTransactItems
		if end > len(es) {
			end = len(es)
		}
		batch := es[start:end]
		if err := tx.put(ctx, batch, now); err != nil {
			if derr := tx.r.delete(ctx, written); derr != nil {
				tx.r.logger.WithError(derr).WithField("messageID", messageID).Error("Registered ids could not be released")
			}
			return err
		}
		written = append(written, batch...)
	}
	tx.reserved = append(tx.reserved, written...)
	return nil
}

func (tx *dynamoTx) put(ctx context.Context, batch []entry, now string) error {
	items := make([]*dynamodb.TransactWriteItem, 0, len(batch))
	for _, e := range batch {
		item, err := dynamodbattribute.MarshalMap(registryItem{
			ID:           itemKey(e),
			Scope:        e.scope.String(),
			SenderID:     e.senderID,
			Value:        e.id,
			RegisteredAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "marshalling registry item")
		}
		items = append(items, &dynamodb.TransactWriteItem{
			Put: &dynamodb.Put{
				TableName:           aws.String(tx.r.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(ID)"),
			},
		})
	}
	_, err := tx.r.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeTransactionCanceledException {
		for i, reason := range cancellationReasons(aerr.Message()) {
			if reason == conditionalCheckFailed && i < len(batch) {
				e := batch[i]
				return &DuplicateError{Scope: e.scope, SenderID: e.senderID, ID: e.id}
			}
		}
	}
	return errors.Wrap(err, "registering ids")
}

func (r *DynamoDB) delete(ctx context.Context, es []entry) error {
	for _, e := range es {
		_, err := r.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.table),
			Key: map[string]*dynamodb.AttributeValue{
				"ID": {S: aws.String(itemKey(e))},
			},
		})
		if err != nil {
			return errors.Wrapf(err, "deleting %s id %s", e.scope, e.id)
		}
	}
	return nil
}

func (tx *dynamoTx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return nil
}

func (tx *dynamoTx) Rollback(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.r.delete(ctx, tx.reserved)
}

// cancellationReasons extracts the per-item reasons from the message of a
// TransactionCanceledException, e.g. "Transaction cancelled, please refer
// cancellation reasons for specific reasons [None, ConditionalCheckFailed]".
func cancellationReasons(message string) []string {
	open := strings.LastIndex(message, "[")
	end := strings.LastIndex(message, "]")
	if open < 0 || end < open {
		return nil
	}
	reasons := strings.Split(message[open+1:end], ",")
	for i := range reasons {
		reasons[i] = strings.TrimSpace(reasons[i])
	}
	return reasons
}
