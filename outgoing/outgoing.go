// Package outgoing turns calculation results into the documents sent to
// market actors.
package outgoing

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing/calculation"
)

var (
	// ErrUnspecified is returned when an event leaves a required value at its
	// unspecified default.
	ErrUnspecified = errors.New("unspecified value")

	// ErrUnknownValue is returned for values outside the enumerations the
	// gateway was built against.
	ErrUnknownValue = errors.New("unknown value")
)

// NotSupportedTimeSeriesTypeError is returned for time series types that are
// produced by the calculation engine but never sent to actors.
type NotSupportedTimeSeriesTypeError struct {
	Type calculation.TimeSeriesType
}

func (e *NotSupportedTimeSeriesTypeError) Error() string {
	return fmt.Sprintf("time series type %d is not supported", e.Type)
}

// Header is the envelope shared by every series of a document.
type Header struct {
	MessageID      string
	BusinessReason market.BusinessReason
	SenderID       market.ActorNumber
	SenderRole     market.ActorRole
	ReceiverID     market.ActorNumber
	ReceiverRole   market.ActorRole
	CreatedAt      time.Time
}

type Point struct {
	Position   int
	SampleTime time.Time
	Quantity   *decimal.Decimal // nil when no value was calculated
	Quality    market.Quality
}

// GridAreaDetails is a grid area together with the actor operating it.
type GridAreaDetails struct {
	Code           string
	OperatorNumber market.ActorNumber
}

// AcceptedEnergyResultTimeSeries is the format neutral form of one series of
// a NotifyAggregatedMeasureData document.
type AcceptedEnergyResultTimeSeries struct {
	TransactionID         string
	Version               int64
	GridArea              GridAreaDetails
	MeteringPointType     market.MeteringPointType
	SettlementMethod      *market.SettlementMethod
	SettlementVersion     *market.SettlementVersion
	EnergySupplierID      *market.ActorNumber
	BalanceResponsibleID  *market.ActorNumber
	OriginalTransactionID *string
	RelatedToMessageID    *string
	MeasurementUnit       market.MeasurementUnit
	Resolution            market.Resolution
	Start                 time.Time
	End                   time.Time
	Points                []Point
}

// Document is a header with the series addressed to its receiver.
type Document struct {
	Header Header
	Series []AcceptedEnergyResultTimeSeries
}
