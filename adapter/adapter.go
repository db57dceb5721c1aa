// Package adapter turns calculation events received by the broker into
// NotifyAggregatedMeasureData documents, archives them and announces them.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gridexchange/edi-gateway/broker"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing"
	"github.com/gridexchange/edi-gateway/outgoing/calculation"
	"github.com/gridexchange/edi-gateway/outgoing/document"
	"github.com/gridexchange/edi-gateway/s3"
)

// NotificationName is the name of the notification published for every
// document made available to a receiver.
const NotificationName = "NotifyAggregatedMeasureData"

// maxConcurrentDocuments bounds the documents of one event rendered at once.
const maxConcurrentDocuments = 4

// Broker is the part of *broker.Broker used by the Adapter.
type Broker interface {
	Subscribe(name string, h broker.EventHandler)
	Run()
	Stop()
}

var _ Broker = (*broker.Broker)(nil)

// Formats selects the document format of each receiver.
type Formats struct {
	Default    market.DocumentFormat
	ByReceiver map[market.ActorNumber]market.DocumentFormat
}

func (f Formats) For(receiver market.ActorNumber) market.DocumentFormat {
	if format, ok := f.ByReceiver[receiver]; ok {
		return format
	}
	return f.Default
}

// Metrics counts the documents produced by the Adapter.
type Metrics struct {
	Rendered *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Rendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_rendered_total",
			Help:      "The total number of outgoing documents rendered, by format.",
		}, []string{"format"}),
	}
}

func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.Rendered)
}

// notification is published once a document is stored.
type notification struct {
	MessageID      string    `json:"messageId"`
	BusinessReason string    `json:"businessReason"`
	ReceiverID     string    `json:"receiverId"`
	ReceiverRole   string    `json:"receiverRole"`
	Format         string    `json:"format"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Adapter is the core of the outgoing pipeline.
//
// It subscribes to the calculation events of the broker, maps each event into
// one document per receiver, writes the documents in the format preferred by
// their receiver, stores them and notifies the delivery side.
type Adapter struct {
	logger   logrus.FieldLogger
	broker   Broker
	mapper   *outgoing.Mapper
	formats  Formats
	store    s3.DocumentStore
	notifier broker.Dispatcher
	metrics  *Metrics

	stop chan chan struct{}
}

func New(
	logger logrus.FieldLogger,
	b Broker,
	mapper *outgoing.Mapper,
	formats Formats,
	store s3.DocumentStore,
	notifier broker.Dispatcher,
	metrics *Metrics) *Adapter {

	c := &Adapter{
		logger:   logger,
		broker:   b,
		mapper:   mapper,
		formats:  formats,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		stop:     make(chan chan struct{}),
	}

	c.broker.Subscribe(calculation.EventNameEnergyResultProducedV2, c.handleEvent)
	c.broker.Subscribe(calculation.EventNameAggregatedTimeSeriesRequestAccepted, c.handleEvent)

	return c
}

func (c *Adapter) Run() {
	go c.broker.Run()
	c.loop()
}

func (c *Adapter) loop() {
	ch := <-c.stop
	c.broker.Stop()
	close(ch)
}

// Stop returns once the broker stopped receiving events. Deliveries in flight
// run to completion under the context the broker gave them.
func (c *Adapter) Stop() {
	ch := make(chan struct{})
	c.stop <- ch
	<-ch
}

// handleEvent produces every document of ev. The event fails as a whole when
// any document cannot be produced, so the broker sends it to the error topic.
func (c *Adapter) handleEvent(ctx context.Context, ev calculation.Event) error {
	docs, err := c.mapper.Map(ctx, ev)
	if err != nil {
		return errors.Wrapf(err, "mapping %s", ev.EventName())
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDocuments)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			return c.deliver(ctx, doc)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"event":     ev.EventName(),
		"documents": len(docs),
	}).Info("Calculation event delivered")
	return nil
}

// deliver renders doc, stores it and publishes its notification.
func (c *Adapter) deliver(ctx context.Context, doc outgoing.Document) error {
	format := c.formats.For(doc.Header.ReceiverID)
	logger := c.logger.WithFields(logrus.Fields{
		"messageID": doc.Header.MessageID,
		"receiver":  doc.Header.ReceiverID.String(),
		"format":    format.String(),
	})

	w, err := document.NewWriter(format)
	if err != nil {
		return err
	}
	data, err := w.Write(doc.Header, doc.Series)
	if err != nil {
		return errors.Wrapf(err, "rendering document %s", doc.Header.MessageID)
	}
	if c.metrics != nil {
		c.metrics.Rendered.WithLabelValues(format.String()).Inc()
	}

	location := ""
	if c.store != nil {
		location, err = c.store.Upload(ctx, documentKey(doc.Header, format), data, format.ContentType())
		if err != nil {
			return errors.Wrap(err, "storing document")
		}
	}

	if c.notifier != nil {
		reason, _ := market.CIMBusinessReasons.Code(doc.Header.BusinessReason)
		role, _ := market.CIMActorRoles.Code(doc.Header.ReceiverRole)
		body, err := json.Marshal(notification{
			MessageID:      doc.Header.MessageID,
			BusinessReason: reason,
			ReceiverID:     doc.Header.ReceiverID.String(),
			ReceiverRole:   role,
			Format:         format.String(),
			Location:       location,
			CreatedAt:      doc.Header.CreatedAt.UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "encoding notification")
		}
		if err := c.notifier.Dispatch(ctx, NotificationName, body); err != nil {
			return err
		}
	}

	logger.WithField("location", location).Debug("Document delivered")
	return nil
}

// documentKey places documents below the receiver that gets them.
func documentKey(h outgoing.Header, format market.DocumentFormat) string {
	ext := ".xml"
	if format == market.DocumentFormatJSON {
		ext = ".json"
	}
	return fmt.Sprintf("%s/%s%s", h.ReceiverID, h.MessageID, ext)
}
