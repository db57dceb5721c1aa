package integration

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gridexchange/edi-gateway/internal/testutil"
	"github.com/gridexchange/edi-gateway/outgoing/calculation"
	"github.com/gridexchange/edi-gateway/receiver"
)

func awsSession(endpoint string) *session.Session {
	config := aws.NewConfig()
	config = config.WithEndpoint(endpoint)
	config = config.WithRegion(awsRegion)
	if *flagDebug {
		config = config.WithLogLevel(aws.LogDebugWithHTTPBody)
	}
	config = config.WithCredentials(credentials.NewStaticCredentials(
		awsAccessKeyID, awsSecretAccessKey, awsTokenKey))
	config = config.WithS3ForcePathStyle(true)
	config.DisableSSL = aws.Bool(true)
	return session.Must(session.NewSession(config))
}

func s3Client() *s3.S3 {
	return s3.New(awsSession(awsEndpoint))
}

func dynamodbClient() *dynamodb.DynamoDB {
	return dynamodb.New(awsSession(awsEndpoint))
}

func sqsClient() *sqs.SQS {
	return sqs.New(awsSession(awsEndpoint))
}

func snsClient() *sns.SNS {
	return sns.New(awsSession(awsEndpoint))
}

// createTable creates a table unless it exists already.
func createTable(t *testing.T, name string, keys ...string) {
	t.Helper()
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}
	for i, key := range keys {
		kind := dynamodb.ScalarAttributeTypeS
		if key == "sequenceNumber" {
			kind = dynamodb.ScalarAttributeTypeN
		}
		keyType := dynamodb.KeyTypeHash
		if i > 0 {
			keyType = dynamodb.KeyTypeRange
		}
		input.AttributeDefinitions = append(input.AttributeDefinitions, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(key),
			AttributeType: aws.String(kind),
		})
		input.KeySchema = append(input.KeySchema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(key),
			KeyType:       aws.String(keyType),
		})
	}
	_, err := awsDynamoDBClient.CreateTable(input)
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeResourceInUseException {
		return
	}
	if err != nil {
		t.Fatalf("Cannot create table %s: %v", name, err)
	}
}

// purgeDynamoDBTable deletes every item of a table.
func purgeDynamoDBTable(t *testing.T, name string, keys ...string) {
	t.Helper()
	res, err := awsDynamoDBClient.Scan(&dynamodb.ScanInput{TableName: aws.String(name)})
	if err != nil {
		t.Fatalf("Cannot scan table %s: %v", name, err)
	}
	for _, item := range res.Items {
		key := map[string]*dynamodb.AttributeValue{}
		for _, k := range keys {
			key[k] = item[k]
		}
		_, err := awsDynamoDBClient.DeleteItem(&dynamodb.DeleteItemInput{
			TableName: aws.String(name),
			Key:       key,
		})
		if err != nil {
			t.Fatalf("Cannot delete item from %s: %v", name, err)
		}
	}
}

func putGridAreaOwner(t *testing.T, gridArea, owner string) {
	t.Helper()
	_, err := awsDynamoDBClient.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(awsGridAreaOwnersTable),
		Item: map[string]*dynamodb.AttributeValue{
			"gridArea":       {S: aws.String(gridArea)},
			"actorNumber":    {S: aws.String(owner)},
			"sequenceNumber": {N: aws.String(strconv.Itoa(1))},
			"validFrom":      {S: aws.String(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339))},
		},
	})
	if err != nil {
		t.Fatal("Cannot create grid area owner: ", err)
	}
}

// sendEvent sends a calculation event to the events queue.
func sendEvent(t *testing.T, name string, body string) {
	t.Helper()
	_, err := awsSQSClient.SendMessage(&sqs.SendMessageInput{
		QueueUrl:    aws.String(awsQueueEvents),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"name": {DataType: aws.String("String"), StringValue: aws.String(name)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func sendEnergyResult(t *testing.T, gridArea string) {
	t.Helper()
	periodStart := time.Date(2022, 2, 1, 23, 0, 0, 0, time.UTC)
	ev := &calculation.EnergyResultProducedV2{
		CalculationID:    "4c4bbd5a-13b5-4ec4-9b3c-2a4ef0bfb9f2",
		CalculationType:  calculation.CalculationTypeBalanceFixing,
		PeriodStart:      periodStart,
		PeriodEnd:        periodStart.Add(time.Hour),
		Resolution:       calculation.ResolutionHour,
		AggregationLevel: calculation.PerGridArea{GridArea: gridArea},
		TimeSeriesType:   calculation.TimeSeriesTypeProduction,
		QuantityUnit:     calculation.QuantityUnitKWh,
		Points: []calculation.TimeSeriesPoint{{
			Time:              periodStart,
			Quantity:          &calculation.DecimalValue{Units: 42},
			QuantityQualities: []calculation.QuantityQuality{calculation.QuantityQualityMeasured},
		}},
		CalculationResultVersion: 1,
	}
	sendEvent(t, ev.EventName(), base64.StdEncoding.EncodeToString(ev.Marshal()))
}

// postDocument sends a fixture to the market API on behalf of an energy
// supplier and returns the status code.
func postDocument(t *testing.T, path, fixture, supplier string) int {
	t.Helper()
	claims := receiver.ActorClaims{ActorNumber: supplier, Role: "EnergySupplier"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtKey))
	if err != nil {
		t.Fatal("Cannot sign token: ", err)
	}

	req, err := http.NewRequest(http.MethodPost, marketAPI+path, bytes.NewReader(testutil.MustFixture(fixture)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	// The server may still be starting.
	var res *http.Response
	for i := 0; i < 20; i++ {
		res, err = http.DefaultClient.Do(req)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
		req.Body, _ = req.GetBody()
	}
	if err != nil {
		t.Fatal("Market API is not reachable: ", err)
	}
	defer res.Body.Close()
	return res.StatusCode
}

func objectExists(t *testing.T, bucket, key string) bool {
	t.Helper()
	_, err := awsS3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func purgeQueue(t *testing.T, queueURL string) {
	t.Helper()
	_, err := awsSQSClient.PurgeQueue(&sqs.PurgeQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	if err != nil {
		t.Fatal("Cannot purge the queue: ", err)
	}
}
