// Package calculation decodes the integration events published by the
// calculation engine. Events travel as protobuf messages; the package reads
// them with protowire so the gateway does not depend on generated code.
package calculation

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Event names as they appear in the message attributes of the broker.
const (
	EventNameEnergyResultProducedV2              = "EnergyResultProducedV2"
	EventNameAggregatedTimeSeriesRequestAccepted = "AggregatedTimeSeriesRequestAccepted"
)

// ErrUnknownEvent is returned by Decode for event names it does not know.
var ErrUnknownEvent = errors.New("unknown event")

type CalculationType int32

const (
	CalculationTypeUnspecified CalculationType = iota
	CalculationTypeBalanceFixing
	CalculationTypeAggregation
	CalculationTypeWholesaleFixing
	CalculationTypeFirstCorrectionSettlement
	CalculationTypeSecondCorrectionSettlement
	CalculationTypeThirdCorrectionSettlement
)

type TimeSeriesType int32

const (
	TimeSeriesTypeUnspecified TimeSeriesType = iota
	TimeSeriesTypeProduction
	TimeSeriesTypeNonProfiledConsumption
	TimeSeriesTypeFlexConsumption
	TimeSeriesTypeNetExchangePerGridArea
	TimeSeriesTypeNetExchangePerNeighboringGridArea
	TimeSeriesTypeGridLoss
	TimeSeriesTypeNegativeGridLoss
	TimeSeriesTypePositiveGridLoss
	TimeSeriesTypeTotalConsumption
	TimeSeriesTypeTempFlexConsumption
	TimeSeriesTypeTempProduction
)

type Resolution int32

const (
	ResolutionUnspecified Resolution = iota
	ResolutionQuarter
	ResolutionHour
)

type QuantityUnit int32

const (
	QuantityUnitUnspecified QuantityUnit = iota
	QuantityUnitKWh
)

type QuantityQuality int32

const (
	QuantityQualityUnspecified QuantityQuality = iota
	QuantityQualityEstimated
	QuantityQualityMeasured
	QuantityQualityMissing
	QuantityQualityCalculated
)

// DecimalValue is a decimal split into whole units and billionths.
type DecimalValue struct {
	Units int64
	Nanos int32
}

type TimeSeriesPoint struct {
	Time time.Time
	// Quantity is nil when the engine could not compute a value.
	Quantity          *DecimalValue
	QuantityQualities []QuantityQuality
}

// AggregationLevel tells over which actors a result was aggregated. It is
// one of PerGridArea, PerEnergySupplierPerGridArea,
// PerBalanceResponsiblePerGridArea and
// PerEnergySupplierPerBalanceResponsiblePerGridArea.
type AggregationLevel interface {
	GridAreaCode() string
	aggregationLevel()
}

type PerGridArea struct {
	GridArea string
}

type PerEnergySupplierPerGridArea struct {
	GridArea         string
	EnergySupplierID string
}

type PerBalanceResponsiblePerGridArea struct {
	GridArea             string
	BalanceResponsibleID string
}

type PerEnergySupplierPerBalanceResponsiblePerGridArea struct {
	GridArea             string
	EnergySupplierID     string
	BalanceResponsibleID string
}

func (a PerGridArea) GridAreaCode() string                                       { return a.GridArea }
func (a PerEnergySupplierPerGridArea) GridAreaCode() string                      { return a.GridArea }
func (a PerBalanceResponsiblePerGridArea) GridAreaCode() string                  { return a.GridArea }
func (a PerEnergySupplierPerBalanceResponsiblePerGridArea) GridAreaCode() string { return a.GridArea }

func (PerGridArea) aggregationLevel()                                       {}
func (PerEnergySupplierPerGridArea) aggregationLevel()                      {}
func (PerBalanceResponsiblePerGridArea) aggregationLevel()                  {}
func (PerEnergySupplierPerBalanceResponsiblePerGridArea) aggregationLevel() {}

// Event is implemented by the decoded integration events.
type Event interface {
	EventName() string
}

// EnergyResultProducedV2 carries one time series of a calculation.
type EnergyResultProducedV2 struct {
	CalculationID            string
	CalculationType          CalculationType
	PeriodStart              time.Time
	PeriodEnd                time.Time
	Resolution               Resolution
	AggregationLevel         AggregationLevel
	TimeSeriesType           TimeSeriesType
	QuantityUnit             QuantityUnit
	Points                   []TimeSeriesPoint
	CalculationResultVersion int64
}

func (*EnergyResultProducedV2) EventName() string { return EventNameEnergyResultProducedV2 }

// AggregatedTimeSeriesRequestAccepted answers a request for aggregated
// measure data with the series that matched it.
type AggregatedTimeSeriesRequestAccepted struct {
	OriginalTransactionID string
	OriginalMessageID     string
	RequestedByID         string
	// RequestedByRole is the CIM code of the role the request was made in.
	RequestedByRole string
	Series          []RequestedSeries
}

func (*AggregatedTimeSeriesRequestAccepted) EventName() string {
	return EventNameAggregatedTimeSeriesRequestAccepted
}

// RequestedSeries is one series of an accepted request. Its points are not
// guaranteed to be ordered.
type RequestedSeries struct {
	GridArea                 string
	EnergySupplierID         string
	BalanceResponsibleID     string
	QuantityUnit             QuantityUnit
	Points                   []TimeSeriesPoint
	TimeSeriesType           TimeSeriesType
	Resolution               Resolution
	CalculationType          CalculationType
	PeriodStart              time.Time
	PeriodEnd                time.Time
	CalculationResultVersion int64
}

// Decode reads the event called name from its wire representation.
func Decode(name string, data []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch name {
	case EventNameEnergyResultProducedV2:
		ev, err = decodeEnergyResultProduced(data)
	case EventNameAggregatedTimeSeriesRequestAccepted:
		ev, err = decodeRequestAccepted(data)
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "%q", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	return ev, nil
}

func decodeEnergyResultProduced(data []byte) (*EnergyResultProducedV2, error) {
	ev := &EnergyResultProducedV2{}
	d := newDecoder(data)
	for d.next() {
		switch d.num {
		case 1:
			ev.CalculationID = d.string()
		case 2:
			ev.CalculationType = CalculationType(d.int32())
		case 3:
			ev.PeriodStart = d.timestamp()
		case 4:
			ev.PeriodEnd = d.timestamp()
		case 5:
			ev.Resolution = Resolution(d.int32())
		case 6:
			var a PerGridArea
			d.sub(func(m *decoder) {
				for m.next() {
					switch m.num {
					case 1:
						a.GridArea = m.string()
					default:
						m.skip()
					}
				}
			})
			ev.AggregationLevel = a
		case 7:
			var a PerEnergySupplierPerGridArea
			d.sub(func(m *decoder) {
				for m.next() {
					switch m.num {
					case 1:
						a.GridArea = m.string()
					case 2:
						a.EnergySupplierID = m.string()
					default:
						m.skip()
					}
				}
			})
			ev.AggregationLevel = a
		case 8:
			var a PerBalanceResponsiblePerGridArea
			d.sub(func(m *decoder) {
				for m.next() {
					switch m.num {
					case 1:
						a.GridArea = m.string()
					case 2:
						a.BalanceResponsibleID = m.string()
					default:
						m.skip()
					}
				}
			})
			ev.AggregationLevel = a
		case 9:
			var a PerEnergySupplierPerBalanceResponsiblePerGridArea
			d.sub(func(m *decoder) {
				for m.next() {
					switch m.num {
					case 1:
						a.GridArea = m.string()
					case 2:
						a.EnergySupplierID = m.string()
					case 3:
						a.BalanceResponsibleID = m.string()
					default:
						m.skip()
					}
				}
			})
			ev.AggregationLevel = a
		case 10:
			ev.TimeSeriesType = TimeSeriesType(d.int32())
		case 11:
			ev.QuantityUnit = QuantityUnit(d.int32())
		case 12:
			ev.Points = append(ev.Points, d.point())
		case 13:
			ev.CalculationResultVersion = d.int64()
		default:
			d.skip()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return ev, nil
}

func decodeRequestAccepted(data []byte) (*AggregatedTimeSeriesRequestAccepted, error) {
	ev := &AggregatedTimeSeriesRequestAccepted{}
	d := newDecoder(data)
	for d.next() {
		switch d.num {
		case 1:
			var s RequestedSeries
			d.sub(func(m *decoder) { s = m.requestedSeries() })
			ev.Series = append(ev.Series, s)
		case 2:
			ev.OriginalTransactionID = d.string()
		case 3:
			ev.OriginalMessageID = d.string()
		case 4:
			ev.RequestedByID = d.string()
		case 5:
			ev.RequestedByRole = d.string()
		default:
			d.skip()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return ev, nil
}

func (d *decoder) requestedSeries() RequestedSeries {
	var s RequestedSeries
	for d.next() {
		switch d.num {
		case 1:
			s.GridArea = d.string()
		case 2:
			s.QuantityUnit = QuantityUnit(d.int32())
		case 3:
			s.Points = append(s.Points, d.point())
		case 4:
			s.TimeSeriesType = TimeSeriesType(d.int32())
		case 5:
			s.Resolution = Resolution(d.int32())
		case 6:
			s.CalculationType = CalculationType(d.int32())
		case 7:
			s.PeriodStart = d.timestamp()
		case 8:
			s.PeriodEnd = d.timestamp()
		case 9:
			s.CalculationResultVersion = d.int64()
		case 10:
			s.EnergySupplierID = d.string()
		case 11:
			s.BalanceResponsibleID = d.string()
		default:
			d.skip()
		}
	}
	return s
}

func (d *decoder) point() TimeSeriesPoint {
	var p TimeSeriesPoint
	d.sub(func(m *decoder) {
		var qualities []int32
		for m.next() {
			switch m.num {
			case 1:
				p.Time = m.timestamp()
			case 2:
				q := &DecimalValue{}
				m.sub(func(v *decoder) {
					for v.next() {
						switch v.num {
						case 1:
							q.Units = v.int64()
						case 2:
							q.Nanos = v.sfixed32()
						default:
							v.skip()
						}
					}
				})
				p.Quantity = q
			case 3:
				qualities = m.enums(qualities)
			default:
				m.skip()
			}
		}
		for _, q := range qualities {
			p.QuantityQualities = append(p.QuantityQualities, QuantityQuality(q))
		}
	})
	return p
}

// Marshal returns the wire representation of the event.
func (ev *EnergyResultProducedV2) Marshal() []byte {
	var e encoder
	e.string(1, ev.CalculationID)
	e.enum(2, int32(ev.CalculationType))
	e.timestamp(3, ev.PeriodStart)
	e.timestamp(4, ev.PeriodEnd)
	e.enum(5, int32(ev.Resolution))
	switch a := ev.AggregationLevel.(type) {
	case PerGridArea:
		e.message(6, func(m *encoder) {
			m.string(1, a.GridArea)
		})
	case PerEnergySupplierPerGridArea:
		e.message(7, func(m *encoder) {
			m.string(1, a.GridArea)
			m.string(2, a.EnergySupplierID)
		})
	case PerBalanceResponsiblePerGridArea:
		e.message(8, func(m *encoder) {
			m.string(1, a.GridArea)
			m.string(2, a.BalanceResponsibleID)
		})
	case PerEnergySupplierPerBalanceResponsiblePerGridArea:
		e.message(9, func(m *encoder) {
			m.string(1, a.GridArea)
			m.string(2, a.EnergySupplierID)
			m.string(3, a.BalanceResponsibleID)
		})
	}
	e.enum(10, int32(ev.TimeSeriesType))
	e.enum(11, int32(ev.QuantityUnit))
	for _, p := range ev.Points {
		e.point(12, p)
	}
	e.int64(13, ev.CalculationResultVersion)
	return e.b
}

// Marshal returns the wire representation of the event.
func (ev *AggregatedTimeSeriesRequestAccepted) Marshal() []byte {
	var e encoder
	for _, s := range ev.Series {
		s := s
		e.message(1, func(m *encoder) {
			m.string(1, s.GridArea)
			m.enum(2, int32(s.QuantityUnit))
			for _, p := range s.Points {
				m.point(3, p)
			}
			m.enum(4, int32(s.TimeSeriesType))
			m.enum(5, int32(s.Resolution))
			m.enum(6, int32(s.CalculationType))
			m.timestamp(7, s.PeriodStart)
			m.timestamp(8, s.PeriodEnd)
			m.int64(9, s.CalculationResultVersion)
			m.string(10, s.EnergySupplierID)
			m.string(11, s.BalanceResponsibleID)
		})
	}
	e.string(2, ev.OriginalTransactionID)
	e.string(3, ev.OriginalMessageID)
	e.string(4, ev.RequestedByID)
	e.string(5, ev.RequestedByRole)
	return e.b
}

func (e *encoder) point(num protowire.Number, p TimeSeriesPoint) {
	e.message(num, func(m *encoder) {
		m.timestamp(1, p.Time)
		if p.Quantity != nil {
			m.message(2, func(v *encoder) {
				v.int64(1, p.Quantity.Units)
				v.sfixed32(2, p.Quantity.Nanos)
			})
		}
		qualities := make([]int32, len(p.QuantityQualities))
		for i, q := range p.QuantityQualities {
			qualities[i] = int32(q)
		}
		m.packed(3, qualities)
	})
}
