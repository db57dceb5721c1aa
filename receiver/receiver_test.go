package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/incoming/validation"
	"github.com/gridexchange/edi-gateway/internal/testutil"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/masterdata"
	"github.com/gridexchange/edi-gateway/registry"
	"github.com/gridexchange/edi-gateway/schema"
)

const (
	gatewayID     = market.ActorNumber("5790001330552")
	messageID     = "123564789123564789123564789123564789"
	transactionID = "555555555555555555555555555555555555"
	supplierID    = "1111111111111"
	delegateID    = "2222222222222"
)

var (
	aggregated = market.IncomingDocumentTypeRequestAggregatedMeasureData
	supplier   = market.ActorIdentity{Number: supplierID, Role: market.ActorRoleEnergySupplier}
)

type dispatched struct {
	name string
	body []byte
}

// recorder is a broker.Dispatcher keeping what it was given.
type recorder struct {
	sync.Mutex
	sent     []dispatched
	attempts int
	err      error
}

func (r *recorder) Dispatch(ctx context.Context, name string, body []byte) error {
	r.Lock()
	defer r.Unlock()
	r.attempts++
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, dispatched{name, body})
	return nil
}

func (r *recorder) commands(t *testing.T) []InitializeProcessCommand {
	t.Helper()
	r.Lock()
	defer r.Unlock()
	var cmds []InitializeProcessCommand
	for _, d := range r.sent {
		var batch InitializeProcessesCommand
		require.NoError(t, json.Unmarshal(d.body, &batch))
		assert.Equal(t, batch.Name(), d.name)
		cmds = append(cmds, batch.Commands...)
	}
	return cmds
}

type fixture struct {
	receiver    *Receiver
	registry    *registry.Memory
	dispatcher  *recorder
	delegations *masterdata.MemoryDelegations
}

func newFixture() *fixture {
	f := &fixture{
		registry:    registry.NewMemory(),
		dispatcher:  &recorder{},
		delegations: masterdata.NewMemoryDelegations(),
	}
	logger := logrus.New()
	validator := validation.New(logger, gatewayID, f.registry, f.delegations)
	f.receiver = New(logger, incoming.NewParsers(schema.NewProvider()), validator, f.registry, f.dispatcher, nil)
	return f
}

func (f *fixture) send(t *testing.T, name string, format market.DocumentFormat, actor market.ActorIdentity) (Response, error) {
	t.Helper()
	return f.receiver.RegisterAndSend(context.Background(), testutil.FixtureReader(t, name), format, aggregated, actor)
}

func TestReceiver_RegisterAndSend(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fixture string
		format  market.DocumentFormat
	}{
		"CIM JSON": {"incoming/request-aggregated-measure-data.json", market.DocumentFormatJSON},
		"CIM XML":  {"incoming/request-aggregated-measure-data.xml", market.DocumentFormatXML},
		"ebIX":     {"incoming/request-aggregated-measure-data.ebix.xml", market.DocumentFormatEbix},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			res, err := f.send(t, tc.fixture, tc.format, supplier)
			require.NoError(t, err)
			assert.False(t, res.IsErrorResponse, res.MessageBody)

			cmds := f.dispatcher.commands(t)
			require.Len(t, cmds, 1)
			cmd := cmds[0]
			require.Len(t, f.dispatcher.sent, 1)
			assert.Equal(t, "InitializeRequestAggregatedMeasureDataProcesses", f.dispatcher.sent[0].name)
			assert.Equal(t, messageID, cmd.MessageID)
			assert.Equal(t, supplierID, cmd.SenderID)
			assert.Equal(t, transactionID, cmd.Series.TransactionID)
			assert.Equal(t, "244", *cmd.Series.GridArea)
			assert.NotEmpty(t, cmd.ProcessID)

			assert.Equal(t, 2, f.registry.Len())
			found, err := f.registry.TransactionIDExists(context.Background(), supplierID, transactionID)
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestReceiver_RegisterAndSend_Resubmission(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.send(t, "incoming/request-aggregated-measure-data.json", market.DocumentFormatJSON, supplier)
	require.NoError(t, err)
	require.False(t, res.IsErrorResponse)

	res, err = f.send(t, "incoming/request-aggregated-measure-data.json", market.DocumentFormatJSON, supplier)
	require.NoError(t, err)
	assert.True(t, res.IsErrorResponse)
	assert.Equal(t, market.DocumentFormatJSON.ContentType(), res.ContentType)
	assert.Contains(t, res.MessageBody, `"code":"`+incoming.CodeDuplicateMessageIDDetected+`"`)
	assert.Contains(t, res.MessageBody, `"code":"`+incoming.CodeDuplicateTransactionIDDetected+`"`)
	assert.Len(t, f.dispatcher.commands(t), 1)
}

func TestReceiver_RegisterAndSend_DelegationRejected(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.delegations.Add(masterdata.Delegation{
		DelegatedBy:     supplierID,
		DelegatedByRole: market.ActorRoleEnergySupplier,
		DelegatedTo:     delegateID,
		GridArea:        "543",
		ProcessType:     market.ProcessTypeRequestEnergyResults,
		SequenceNumber:  1,
		StartsAt:        time.Now().Add(-time.Hour),
	})
	delegated := market.ActorIdentity{Number: delegateID, Role: market.ActorRoleDelegated}

	res, err := f.send(t, "incoming/request-aggregated-measure-data.xml", market.DocumentFormatXML, delegated)
	require.NoError(t, err)
	assert.True(t, res.IsErrorResponse)
	assert.Contains(t, res.MessageBody, "<Code>"+incoming.CodeAuthenticatedUserDoesNotHoldRequiredRole+"</Code>")
	assert.Contains(t, res.MessageBody, "The authenticated user does not hold the required role")
	assert.Empty(t, f.dispatcher.commands(t))
	assert.Zero(t, f.registry.Len())

	f.delegations.Add(masterdata.Delegation{
		DelegatedBy:     supplierID,
		DelegatedByRole: market.ActorRoleEnergySupplier,
		DelegatedTo:     delegateID,
		GridArea:        "244",
		ProcessType:     market.ProcessTypeRequestEnergyResults,
		SequenceNumber:  1,
		StartsAt:        time.Now().Add(-time.Hour),
	})
	res, err = f.send(t, "incoming/request-aggregated-measure-data.xml", market.DocumentFormatXML, delegated)
	require.NoError(t, err)
	assert.False(t, res.IsErrorResponse, res.MessageBody)
	assert.Len(t, f.dispatcher.commands(t), 1)
}

func TestReceiver_RegisterAndSend_StructuralErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.receiver.RegisterAndSend(context.Background(), testutil.FixtureReader(t, "incoming/request-aggregated-measure-data.json"), market.DocumentFormatXML, aggregated, supplier)
	require.NoError(t, err)
	assert.True(t, res.IsErrorResponse)
	assert.Equal(t, market.DocumentFormatXML.ContentType(), res.ContentType)
	assert.Contains(t, res.MessageBody, "<Code>"+incoming.CodeInvalidMessageStructure+"</Code>")
	assert.Zero(t, f.registry.Len())
}

// A failed dispatch sends no command and leaves nothing registered so the
// sender's retry is accepted.
func TestReceiver_RegisterAndSend_DispatchFailure(t *testing.T) {
	t.Parallel()

	const (
		fixture        = "incoming/request-aggregated-measure-data-two-series.json"
		transactionID2 = "666666666666666666666666666666666666"
	)

	f := newFixture()
	f.dispatcher.err = errors.New("topic unavailable")

	_, err := f.send(t, fixture, market.DocumentFormatJSON, supplier)
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr), "%v", err)
	assert.Equal(t, messageID, dispatchErr.MessageID)
	assert.EqualError(t, errors.Cause(err), "topic unavailable")
	assert.Equal(t, 1, f.dispatcher.attempts, "the series of a message are dispatched together")
	assert.Empty(t, f.dispatcher.commands(t))
	assert.Zero(t, f.registry.Len())

	f.dispatcher.err = nil
	res, err := f.send(t, fixture, market.DocumentFormatJSON, supplier)
	require.NoError(t, err)
	assert.False(t, res.IsErrorResponse, res.MessageBody)
	assert.Equal(t, 3, f.registry.Len())
	assert.Equal(t, 2, f.dispatcher.attempts)

	cmds := f.dispatcher.commands(t)
	require.Len(t, cmds, 2)
	assert.Equal(t, transactionID, cmds[0].Series.TransactionID)
	assert.Equal(t, transactionID2, cmds[1].Series.TransactionID)
	assert.NotEqual(t, cmds[0].ProcessID, cmds[1].ProcessID)
}

func TestReceiver_RegisterAndSend_Concurrent(t *testing.T) {
	t.Parallel()

	const workers = 8
	f := newFixture()
	blob := testutil.Fixture(t, "incoming/request-aggregated-measure-data.json")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.receiver.RegisterAndSend(context.Background(), bytes.NewReader(blob), market.DocumentFormatJSON, aggregated, supplier)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Error(err)
				return
			}
			if res.IsErrorResponse {
				rejected++
				return
			}
			accepted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, rejected)
	assert.Len(t, f.dispatcher.commands(t), 1)
	assert.Equal(t, 2, f.registry.Len())
}

func TestDuplicate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, incoming.DuplicateMessageIDDetected("m1"),
		duplicate(&registry.DuplicateError{Scope: registry.ScopeMessage, SenderID: supplierID, ID: "m1"}))
	assert.Equal(t, incoming.DuplicateTransactionIDDetected("t1"),
		duplicate(&registry.DuplicateError{Scope: registry.ScopeTransaction, SenderID: supplierID, ID: "t1"}))
}
