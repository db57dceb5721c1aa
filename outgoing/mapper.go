package outgoing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/masterdata"
	"github.com/gridexchange/edi-gateway/outgoing/calculation"
)

// senderRole is the role the gateway sends calculation results in.
const senderRole = market.ActorRoleMeteredDataAdministrator

type Option func(*Mapper)

func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		m.now = now
	}
}

// WithIDs replaces the generator of message and transaction ids.
func WithIDs(newID func() string) Option {
	return func(m *Mapper) {
		m.newID = newID
	}
}

// Mapper addresses calculation events to the actors entitled to them.
type Mapper struct {
	gatewayID market.ActorNumber
	owners    masterdata.GridAreaOwnerClient
	now       func() time.Time
	newID     func() string
}

func NewMapper(gatewayID market.ActorNumber, owners masterdata.GridAreaOwnerClient, opts ...Option) *Mapper {
	m := &Mapper{
		gatewayID: gatewayID,
		owners:    owners,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type receiver struct {
	id   market.ActorNumber
	role market.ActorRole
}

// Map returns one document per receiver of the event. Any value the
// documents cannot represent fails the whole event.
func (m *Mapper) Map(ctx context.Context, ev calculation.Event) ([]Document, error) {
	switch ev := ev.(type) {
	case *calculation.EnergyResultProducedV2:
		return m.mapEnergyResult(ctx, ev)
	case *calculation.AggregatedTimeSeriesRequestAccepted:
		return m.mapRequestAccepted(ctx, ev)
	}
	return nil, errors.Wrapf(ErrUnknownValue, "event %T", ev)
}

func (m *Mapper) mapEnergyResult(ctx context.Context, ev *calculation.EnergyResultProducedV2) ([]Document, error) {
	reason, version, err := MapCalculationType(ev.CalculationType)
	if err != nil {
		return nil, err
	}
	points, err := MapPoints(ev.Points)
	if err != nil {
		return nil, err
	}
	series, err := m.series(ev.TimeSeriesType, ev.Resolution, ev.QuantityUnit, ev.CalculationResultVersion)
	if err != nil {
		return nil, err
	}
	series.SettlementVersion = version
	series.Start, series.End = ev.PeriodStart, ev.PeriodEnd
	series.Points = points

	if ev.AggregationLevel == nil {
		return nil, errors.Wrap(ErrUnspecified, "aggregation level")
	}
	if series.GridArea, err = m.gridArea(ctx, ev.AggregationLevel.GridAreaCode()); err != nil {
		return nil, err
	}

	var receivers []receiver
	switch level := ev.AggregationLevel.(type) {
	case calculation.PerGridArea:
		receivers = append(receivers, receiver{series.GridArea.OperatorNumber, market.ActorRoleMeteredDataResponsible})
	case calculation.PerEnergySupplierPerGridArea:
		es := market.ActorNumber(level.EnergySupplierID)
		series.EnergySupplierID = &es
		receivers = append(receivers, receiver{es, market.ActorRoleEnergySupplier})
	case calculation.PerBalanceResponsiblePerGridArea:
		brp := market.ActorNumber(level.BalanceResponsibleID)
		series.BalanceResponsibleID = &brp
		receivers = append(receivers, receiver{brp, market.ActorRoleBalanceResponsibleParty})
	case calculation.PerEnergySupplierPerBalanceResponsiblePerGridArea:
		es := market.ActorNumber(level.EnergySupplierID)
		brp := market.ActorNumber(level.BalanceResponsibleID)
		series.EnergySupplierID, series.BalanceResponsibleID = &es, &brp
		receivers = append(receivers,
			receiver{es, market.ActorRoleEnergySupplier},
			receiver{brp, market.ActorRoleBalanceResponsibleParty})
	default:
		return nil, errors.Wrapf(ErrUnknownValue, "aggregation level %T", level)
	}

	docs := make([]Document, 0, len(receivers))
	for _, r := range receivers {
		if !r.id.Valid() {
			return nil, errors.Wrapf(ErrUnknownValue, "receiver %q", r.id)
		}
		s := series
		s.TransactionID = m.newID()
		docs = append(docs, Document{
			Header: m.header(reason, r),
			Series: []AcceptedEnergyResultTimeSeries{s},
		})
	}
	return docs, nil
}

// mapRequestAccepted answers the requesting actor. Series of different
// business reasons are sent in separate documents.
func (m *Mapper) mapRequestAccepted(ctx context.Context, ev *calculation.AggregatedTimeSeriesRequestAccepted) ([]Document, error) {
	role, ok := market.CIMActorRoles.Parse(ev.RequestedByRole)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownValue, "requester role %q", ev.RequestedByRole)
	}
	r := receiver{market.ActorNumber(ev.RequestedByID), role}
	if !r.id.Valid() {
		return nil, errors.Wrapf(ErrUnknownValue, "requester %q", ev.RequestedByID)
	}
	if len(ev.Series) == 0 {
		return nil, errors.New("accepted request without series")
	}

	var docs []Document
	index := make(map[market.BusinessReason]int)
	for i, rs := range ev.Series {
		reason, version, err := MapCalculationType(rs.CalculationType)
		if err != nil {
			return nil, errors.Wrapf(err, "series %d", i+1)
		}
		points, err := mapPointsByTime(rs.Points)
		if err != nil {
			return nil, errors.Wrapf(err, "series %d", i+1)
		}
		s, err := m.series(rs.TimeSeriesType, rs.Resolution, rs.QuantityUnit, rs.CalculationResultVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "series %d", i+1)
		}
		if s.GridArea, err = m.gridArea(ctx, rs.GridArea); err != nil {
			return nil, errors.Wrapf(err, "series %d", i+1)
		}
		s.TransactionID = m.newID()
		s.SettlementVersion = version
		s.Start, s.End = rs.PeriodStart, rs.PeriodEnd
		s.Points = points
		if rs.EnergySupplierID != "" {
			es := market.ActorNumber(rs.EnergySupplierID)
			s.EnergySupplierID = &es
		}
		if rs.BalanceResponsibleID != "" {
			brp := market.ActorNumber(rs.BalanceResponsibleID)
			s.BalanceResponsibleID = &brp
		}
		if ev.OriginalTransactionID != "" {
			original := ev.OriginalTransactionID
			s.OriginalTransactionID = &original
		}
		if ev.OriginalMessageID != "" {
			related := ev.OriginalMessageID
			s.RelatedToMessageID = &related
		}

		n, ok := index[reason]
		if !ok {
			n = len(docs)
			index[reason] = n
			docs = append(docs, Document{Header: m.header(reason, r)})
		}
		docs[n].Series = append(docs[n].Series, s)
	}
	return docs, nil
}

// series maps the values shared by both kinds of events.
func (m *Mapper) series(t calculation.TimeSeriesType, r calculation.Resolution, u calculation.QuantityUnit, version int64) (AcceptedEnergyResultTimeSeries, error) {
	var s AcceptedEnergyResultTimeSeries
	var err error
	if version < 1 {
		return s, errors.Wrap(ErrUnspecified, "calculation result version")
	}
	s.Version = version
	if s.MeteringPointType, err = MapMeteringPointType(t); err != nil {
		return s, err
	}
	if s.SettlementMethod, err = MapSettlementMethod(t); err != nil {
		return s, err
	}
	if s.Resolution, err = MapResolution(r); err != nil {
		return s, err
	}
	if s.MeasurementUnit, err = MapQuantityUnit(u); err != nil {
		return s, err
	}
	return s, nil
}

// gridArea resolves the operator of a grid area. Unknown grid areas fail
// with ErrGridAreaOwnerNotFound as cause.
func (m *Mapper) gridArea(ctx context.Context, code string) (GridAreaDetails, error) {
	owner, err := m.owners.GridAreaOwner(ctx, code)
	if err != nil {
		return GridAreaDetails{}, errors.Wrap(err, "resolving grid area operator")
	}
	return GridAreaDetails{Code: code, OperatorNumber: owner}, nil
}

func (m *Mapper) header(reason market.BusinessReason, r receiver) Header {
	return Header{
		MessageID:      m.newID(),
		BusinessReason: reason,
		SenderID:       m.gatewayID,
		SenderRole:     senderRole,
		ReceiverID:     r.id,
		ReceiverRole:   r.role,
		CreatedAt:      m.now().UTC(),
	}
}
