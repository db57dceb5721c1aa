package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commandsARN = "arn:aws:sns:us-east-1:123456789012:commands"

func TestSNSDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	client := &snsMock{}
	d := NewSNSDispatcher(logger, client, commandsARN)

	err := d.Dispatch(context.Background(), "InitializeAggregatedMeasureDataProcesses", []byte(`{"processId":"1"}`))

	require.NoError(t, err)
	published := client.inputs()
	require.Len(t, published, 1)
	assert.Equal(t, commandsARN, aws.StringValue(published[0].TopicArn))
	assert.Equal(t, `{"processId":"1"}`, aws.StringValue(published[0].Message))
	require.Len(t, published[0].MessageAttributes, 1)
	assert.Equal(t, "String", aws.StringValue(published[0].MessageAttributes[nameAttribute].DataType))
	assert.Equal(t, "InitializeAggregatedMeasureDataProcesses", aws.StringValue(published[0].MessageAttributes[nameAttribute].StringValue))
}

func TestSNSDispatcher_Dispatch_Cancelled(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	client := &snsMock{err: errors.New("service unavailable")}
	d := NewSNSDispatcher(logger, client, commandsARN)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Dispatch(ctx, "InitializeAggregatedMeasureDataProcesses", []byte(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing InitializeAggregatedMeasureDataProcesses")
	assert.Len(t, client.inputs(), 1)
}

type publisherMock struct {
	subjects   []string
	data       [][]byte
	publishErr error
	flushErr   error
	flushed    int
}

func (p *publisherMock) Publish(subject string, data []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.subjects = append(p.subjects, subject)
	p.data = append(p.data, data)
	return nil
}

func (p *publisherMock) FlushWithContext(ctx context.Context) error {
	p.flushed++
	return p.flushErr
}

func TestNATSDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		prefix      string
		conn        *publisherMock
		wantSubject string
		wantErr     string
	}{
		"prefixed subject": {
			prefix:      "edi.commands",
			conn:        &publisherMock{},
			wantSubject: "edi.commands.InitializeAggregatedMeasureDataProcesses",
		},
		"bare subject": {
			conn:        &publisherMock{},
			wantSubject: "InitializeAggregatedMeasureDataProcesses",
		},
		"publish fails": {
			conn:    &publisherMock{publishErr: errors.New("nats: connection closed")},
			wantErr: "publishing InitializeAggregatedMeasureDataProcesses: nats: connection closed",
		},
		"flush fails": {
			conn:        &publisherMock{flushErr: errors.New("nats: timeout")},
			wantSubject: "InitializeAggregatedMeasureDataProcesses",
			wantErr:     "flushing InitializeAggregatedMeasureDataProcesses: nats: timeout",
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := NewNATSDispatcher(tc.conn, tc.prefix)

			err := d.Dispatch(context.Background(), "InitializeAggregatedMeasureDataProcesses", []byte("{}"))

			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 1, tc.conn.flushed)
			}
			if tc.wantSubject != "" {
				assert.Equal(t, []string{tc.wantSubject}, tc.conn.subjects)
			}
		})
	}
}
