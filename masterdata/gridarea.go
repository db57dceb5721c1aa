package masterdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gridexchange/edi-gateway/market"
)

// ErrGridAreaOwnerNotFound is returned when no actor owns a grid area.
var ErrGridAreaOwnerNotFound = errors.New("grid area owner not found")

// GridAreaOwnerClient resolves the grid operator that owns a grid area.
type GridAreaOwnerClient interface {
	GridAreaOwner(ctx context.Context, gridArea string) (market.ActorNumber, error)
}

// StaticGridAreaOwners maps grid area codes to their owners.
type StaticGridAreaOwners map[string]market.ActorNumber

var _ GridAreaOwnerClient = StaticGridAreaOwners(nil)

func (s StaticGridAreaOwners) GridAreaOwner(ctx context.Context, gridArea string) (market.ActorNumber, error) {
	owner, ok := s[gridArea]
	if !ok {
		return "", errors.Wrapf(ErrGridAreaOwnerNotFound, "grid area %s", gridArea)
	}
	return owner, nil
}

var (
	reloadFrequency  = 5 * time.Minute
	initialLoadLimit = 30 * time.Second
)

type gridAreaOwnerRecord struct {
	GridArea       string    `dynamodbav:"gridArea"`
	ActorNumber    string    `dynamodbav:"actorNumber"`
	SequenceNumber int       `dynamodbav:"sequenceNumber"`
	ValidFrom      time.Time `dynamodbav:"validFrom"`
}

// GridAreaOwners keeps the grid area ownership table in memory. It is loaded
// from DynamoDB when created and reloaded periodically or on demand.
type GridAreaOwners struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         logrus.FieldLogger
	dynamodbClient dynamodbiface.DynamoDBAPI
	dynamodbTable  string
	reloadCh       chan struct{}
	stopCh         chan chan struct{}
	owners         map[string]market.ActorNumber
	sync.RWMutex
}

var _ GridAreaOwnerClient = (*GridAreaOwners)(nil)

// NewGridAreaOwners returns a usable cache. The first load is retried with
// exponential backoff for a short while so the gateway can start alongside
// its database.
func NewGridAreaOwners(logger logrus.FieldLogger, dynamodbClient dynamodbiface.DynamoDBAPI, dynamodbTable string) (*GridAreaOwners, error) {
	r := &GridAreaOwners{
		logger:         logger,
		dynamodbClient: dynamodbClient,
		dynamodbTable:  dynamodbTable,
		reloadCh:       make(chan struct{}),
		stopCh:         make(chan chan struct{}),
		owners:         make(map[string]market.ActorNumber),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = initialLoadLimit
	if err := backoff.Retry(r.load, backoff.WithContext(bo, r.ctx)); err != nil {
		r.cancel()
		return nil, errors.Wrap(err, "grid area owners failed to load from source")
	}
	go r.loop()
	return r, nil
}

// load reads every ownership record and keeps, per grid area, the record with
// the highest sequence number that is already valid.
func (r *GridAreaOwners) load() error {
	var records []gridAreaOwnerRecord
	input := &dynamodb.ScanInput{
		TableName:      aws.String(r.dynamodbTable),
		ConsistentRead: aws.Bool(true),
	}
	for {
		res, err := r.dynamodbClient.ScanWithContext(r.ctx, input)
		if err != nil {
			return errors.Wrap(err, "failed to scan grid area owners")
		}
		page := []gridAreaOwnerRecord{}
		if err := dynamodbattribute.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to unmarshal grid area owners"))
		}
		records = append(records, page...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	if len(records) < 1 {
		r.logger.WithField("table", r.dynamodbTable).Warn("Grid area owners have been loaded but the table is empty")
	}

	now := time.Now()
	latest := make(map[string]gridAreaOwnerRecord)
	for _, rec := range records {
		if rec.ValidFrom.After(now) {
			continue
		}
		if cur, ok := latest[rec.GridArea]; ok && cur.SequenceNumber >= rec.SequenceNumber {
			continue
		}
		latest[rec.GridArea] = rec
	}
	owners := make(map[string]market.ActorNumber, len(latest))
	for code, rec := range latest {
		owners[code] = market.ActorNumber(rec.ActorNumber)
	}

	r.Lock()
	r.owners = owners
	r.Unlock()
	return nil
}

func (r *GridAreaOwners) loop() {
	ticker := time.NewTicker(reloadFrequency)
	defer ticker.Stop()
	for {
		select {
		case ch := <-r.stopCh:
			r.cancel()
			close(ch)
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.reloadCh:
		}
		if err := r.load(); err != nil {
			r.logger.WithError(err).Error("Grid area owners could not be reloaded")
		}
	}
}

func (r *GridAreaOwners) GridAreaOwner(ctx context.Context, gridArea string) (market.ActorNumber, error) {
	r.RLock()
	defer r.RUnlock()
	owner, ok := r.owners[gridArea]
	if !ok {
		return "", errors.Wrapf(ErrGridAreaOwnerNotFound, "grid area %s", gridArea)
	}
	return owner, nil
}

func (r *GridAreaOwners) Log() {
	r.RLock()
	defer r.RUnlock()
	codes := make([]string, 0, len(r.owners))
	for code := range r.owners {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		r.logger.WithFields(logrus.Fields{
			"gridArea": code,
			"owner":    r.owners[code],
		}).Warn("Grid area owner found")
	}
}

// Reload is a non-blocking request to reload the owners. The operation is
// omitted if it is already happening.
func (r *GridAreaOwners) Reload() {
	select {
	case r.reloadCh <- struct{}{}:
		r.logger.Warn("Reloading grid area owners")
		return
	default:
		r.logger.Warn("The grid area owners are currently reloading")
	}
}

func (r *GridAreaOwners) Stop() {
	ch := make(chan struct{})
	r.stopCh <- ch
	<-ch
}
