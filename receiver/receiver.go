// Package receiver accepts market documents from actors. A document is
// parsed, validated and registered before the process commands of its series
// are dispatched in one message.
package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/gridexchange/edi-gateway/broker"
	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/incoming/validation"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/registry"
)

// DispatchError is returned when the commands of a message could not be
// dispatched. None of them were sent and the registration of the message has
// been rolled back so the sender can retry.
type DispatchError struct {
	MessageID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatching commands of message %s: %v", e.MessageID, e.Err)
}

func (e *DispatchError) Cause() error  { return e.Err }
func (e *DispatchError) Unwrap() error { return e.Err }

// Metrics counts the messages handled by a Receiver.
type Metrics struct {
	Received prometheus.Counter
	Rejected *prometheus.CounterVec
	Accepted prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_messages_total",
			Help:      "The total number of messages received.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_messages_total",
			Help:      "The total number of messages rejected, by the kind of the first error.",
		}, []string{"kind"}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_transactions_total",
			Help:      "The total number of transactions accepted.",
		}),
	}
}

func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.Received, m.Rejected, m.Accepted)
}

// Receiver registers and forwards incoming messages.
type Receiver struct {
	logger     logrus.FieldLogger
	parsers    *incoming.Parsers
	validator  *validation.Validator
	registry   registry.Registry
	dispatcher broker.Dispatcher
	metrics    *Metrics
}

func New(
	logger logrus.FieldLogger,
	parsers *incoming.Parsers,
	validator *validation.Validator,
	reg registry.Registry,
	dispatcher broker.Dispatcher,
	metrics *Metrics) *Receiver {
	if metrics == nil {
		metrics = NewMetrics("edi_gateway")
	}
	return &Receiver{
		logger:     logger,
		parsers:    parsers,
		validator:  validator,
		registry:   reg,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// RegisterAndSend parses and validates the document read from r on behalf of
// actor. Accepted messages have their message id and transaction ids
// registered and one command per series dispatched, all in a single
// dispatch. The registration only persists when that dispatch succeeded.
//
// Problems with the document are reported in the Response. The error return
// is reserved for failures of the gateway or its collaborators.
func (r *Receiver) RegisterAndSend(ctx context.Context, rd io.ReadSeeker, format market.DocumentFormat, documentType market.IncomingDocumentType, actor market.ActorIdentity) (Response, error) {
	r.metrics.Received.Inc()

	res, err := r.parsers.Parse(ctx, rd, format, documentType)
	if err != nil {
		return Response{}, err
	}
	if !res.Success() {
		return r.reject(format, res.Errors)
	}
	msg := res.Message

	logger := r.logger.WithFields(logrus.Fields{
		"messageID":    msg.Header.MessageID,
		"sender":       msg.Header.SenderID,
		"documentType": documentType,
	})

	errs, err := r.validator.Validate(ctx, msg, actor)
	if err != nil {
		return Response{}, errors.Wrap(err, "validating message")
	}
	if len(errs) > 0 {
		return r.reject(format, errs)
	}

	tx, err := r.registry.Begin(ctx)
	if err != nil {
		return Response{}, errors.Wrap(err, "starting registration")
	}
	if err := tx.Register(ctx, msg.Header.SenderID, msg.Header.MessageID, msg.TransactionIDs()); err != nil {
		r.rollback(ctx, logger, tx)
		var dup *registry.DuplicateError
		if errors.As(err, &dup) {
			logger.WithError(err).Info("Message lost a registration race")
			return r.reject(format, []incoming.ValidationError{duplicate(dup)})
		}
		return Response{}, errors.Wrap(err, "registering message")
	}

	cmd := newInitializeProcessesCommand(msg)
	body, err := json.Marshal(cmd)
	if err != nil {
		r.rollback(ctx, logger, tx)
		return Response{}, errors.Wrap(err, "encoding commands")
	}
	if err := r.dispatcher.Dispatch(ctx, cmd.Name(), body); err != nil {
		r.rollback(ctx, logger, tx)
		return Response{}, &DispatchError{MessageID: msg.Header.MessageID, Err: err}
	}
	for _, c := range cmd.Commands {
		logger.WithFields(logrus.Fields{
			"transactionID": c.Series.TransactionID,
			"processID":     c.ProcessID,
		}).Debug("Process command dispatched")
	}

	if err := tx.Commit(ctx); err != nil {
		return Response{}, errors.Wrap(err, "committing registration")
	}
	r.metrics.Accepted.Add(float64(len(msg.Series)))
	logger.WithField("transactions", len(msg.Series)).Info("Message accepted")

	return Response{ContentType: format.ContentType()}, nil
}

func (r *Receiver) reject(format market.DocumentFormat, errs []incoming.ValidationError) (Response, error) {
	r.metrics.Rejected.WithLabelValues(errs[0].Kind.String()).Inc()
	return errorResponse(format, errs)
}

// rollback releases the registration, also when ctx is already canceled. A
// failure leaves ids behind that block the sender's retry.
func (r *Receiver) rollback(ctx context.Context, logger logrus.FieldLogger, tx registry.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		logger.WithError(err).Error("Registration could not be rolled back")
	}
}

func duplicate(err *registry.DuplicateError) incoming.ValidationError {
	if err.Scope == registry.ScopeMessage {
		return incoming.DuplicateMessageIDDetected(err.ID)
	}
	return incoming.DuplicateTransactionIDDetected(err.ID)
}
