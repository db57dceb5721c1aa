// Package masterdata gives read access to the master data the gateway needs
// but does not own: grid area ownership and delegations between actors.
package masterdata

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
)

// Delegation lets DelegatedTo act on behalf of DelegatedBy in one grid area
// and process. Every change to a delegation is stored as a new record with a
// higher SequenceNumber. A record whose StartsAt equals its StopsAt revokes
// the delegation.
type Delegation struct {
	DelegatedBy     market.ActorNumber
	DelegatedByRole market.ActorRole
	DelegatedTo     market.ActorNumber
	GridArea        string
	ProcessType     market.ProcessType
	SequenceNumber  int
	StartsAt        time.Time
	StopsAt         *time.Time
}

// DelegationQuery selects the records of one delegation.
type DelegationQuery struct {
	DelegatedBy     market.ActorNumber
	DelegatedByRole market.ActorRole
	DelegatedTo     market.ActorNumber
	GridArea        string
	ProcessType     market.ProcessType
}

func (q DelegationQuery) matches(d Delegation) bool {
	return d.DelegatedBy == q.DelegatedBy &&
		d.DelegatedByRole == q.DelegatedByRole &&
		d.DelegatedTo == q.DelegatedTo &&
		d.GridArea == q.GridArea &&
		d.ProcessType == q.ProcessType
}

// ActiveDelegation returns the latest record of the delegation selected by q
// when it is in effect at now.
func ActiveDelegation(delegations []Delegation, q DelegationQuery, now time.Time) (Delegation, bool) {
	var (
		latest Delegation
		found  bool
	)
	for _, d := range delegations {
		if !q.matches(d) {
			continue
		}
		if !found || d.SequenceNumber > latest.SequenceNumber {
			latest, found = d, true
		}
	}
	if !found {
		return Delegation{}, false
	}
	if latest.StopsAt != nil {
		if latest.StartsAt.Equal(*latest.StopsAt) || !now.Before(*latest.StopsAt) {
			return Delegation{}, false
		}
	}
	if now.Before(latest.StartsAt) {
		return Delegation{}, false
	}
	return latest, true
}

// DelegationReader lists the delegations granted to an actor.
type DelegationReader interface {
	Delegations(ctx context.Context, delegatedTo market.ActorNumber, processType market.ProcessType) ([]Delegation, error)
}

// MemoryDelegations is a DelegationReader over a fixed set of records.
type MemoryDelegations struct {
	mu          sync.RWMutex
	delegations []Delegation
}

var _ DelegationReader = (*MemoryDelegations)(nil)

func NewMemoryDelegations(delegations ...Delegation) *MemoryDelegations {
	return &MemoryDelegations{delegations: delegations}
}

func (m *MemoryDelegations) Add(d Delegation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegations = append(m.delegations, d)
}

func (m *MemoryDelegations) Delegations(ctx context.Context, delegatedTo market.ActorNumber, processType market.ProcessType) ([]Delegation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ds []Delegation
	for _, d := range m.delegations {
		if d.DelegatedTo == delegatedTo && d.ProcessType == processType {
			ds = append(ds, d)
		}
	}
	return ds, nil
}

// delegationItem is a delegation record in DynamoDB. The table is keyed by
// delegatedTo (hash) and recordID (range).
type delegationItem struct {
	DelegatedTo     string     `dynamodbav:"delegatedTo"`
	RecordID        string     `dynamodbav:"recordID"`
	DelegatedBy     string     `dynamodbav:"delegatedBy"`
	DelegatedByRole string     `dynamodbav:"delegatedByRole"`
	GridArea        string     `dynamodbav:"gridArea"`
	ProcessType     string     `dynamodbav:"processType"`
	SequenceNumber  int        `dynamodbav:"sequenceNumber"`
	StartsAt        time.Time  `dynamodbav:"startsAt"`
	StopsAt         *time.Time `dynamodbav:"stopsAt,omitempty"`
}

type DynamoDBDelegations struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

var _ DelegationReader = (*DynamoDBDelegations)(nil)

func NewDynamoDBDelegations(client dynamodbiface.DynamoDBAPI, table string) *DynamoDBDelegations {
	return &DynamoDBDelegations{client: client, table: table}
}

// Put stores a delegation record.
func (s *DynamoDBDelegations) Put(ctx context.Context, d Delegation) error {
	item, err := dynamodbattribute.MarshalMap(delegationItem{
		DelegatedTo:     d.DelegatedTo.String(),
		RecordID:        recordID(d),
		DelegatedBy:     d.DelegatedBy.String(),
		DelegatedByRole: d.DelegatedByRole.String(),
		GridArea:        d.GridArea,
		ProcessType:     d.ProcessType.String(),
		SequenceNumber:  d.SequenceNumber,
		StartsAt:        d.StartsAt,
		StopsAt:         d.StopsAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling delegation")
	}
	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return errors.Wrap(err, "storing delegation")
}

func (s *DynamoDBDelegations) Delegations(ctx context.Context, delegatedTo market.ActorNumber, processType market.ProcessType) ([]Delegation, error) {
	var items []delegationItem
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("delegatedTo = :to"),
		FilterExpression:       aws.String("processType = :pt"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":to": {S: aws.String(delegatedTo.String())},
			":pt": {S: aws.String(processType.String())},
		},
	}
	for {
		output, err := s.client.QueryWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrap(err, "querying delegations")
		}
		page := []delegationItem{}
		if err := dynamodbattribute.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, errors.Wrap(err, "unmarshalling delegations")
		}
		items = append(items, page...)
		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	delegations := make([]Delegation, 0, len(items))
	for _, item := range items {
		role, ok := market.ParseActorRoleName(item.DelegatedByRole)
		if !ok {
			return nil, errors.Errorf("delegation %s has unknown role %q", item.RecordID, item.DelegatedByRole)
		}
		delegations = append(delegations, Delegation{
			DelegatedBy:     market.ActorNumber(item.DelegatedBy),
			DelegatedByRole: role,
			DelegatedTo:     market.ActorNumber(item.DelegatedTo),
			GridArea:        item.GridArea,
			ProcessType:     processType,
			SequenceNumber:  item.SequenceNumber,
			StartsAt:        item.StartsAt,
			StopsAt:         item.StopsAt,
		})
	}
	return delegations, nil
}

func recordID(d Delegation) string {
	return d.DelegatedBy.String() + "|" + d.DelegatedByRole.String() + "|" + d.GridArea + "|" + d.ProcessType.String() + "|" + strconv.Itoa(d.SequenceNumber)
}
