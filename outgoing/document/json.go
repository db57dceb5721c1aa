package document

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing"
)

type value struct {
	Value string `json:"value"`
}

type codedValue struct {
	CodingScheme string `json:"codingScheme"`
	Value        string `json:"value"`
}

type jsonEnvelope struct {
	Document jsonDocument `json:"NotifyAggregatedMeasureData_MarketDocument"`
}

type jsonDocument struct {
	MRID               string       `json:"mRID"`
	Type               value        `json:"type"`
	ProcessType        value        `json:"process.processType"`
	BusinessSectorType value        `json:"businessSector.type"`
	SenderID           codedValue   `json:"sender_MarketParticipant.mRID"`
	SenderRole         value        `json:"sender_MarketParticipant.marketRole.type"`
	ReceiverID         codedValue   `json:"receiver_MarketParticipant.mRID"`
	ReceiverRole       value        `json:"receiver_MarketParticipant.marketRole.type"`
	CreatedDateTime    string       `json:"createdDateTime"`
	Series             []jsonSeries `json:"Series"`
}

type jsonSeries struct {
	MRID                  string      `json:"mRID"`
	Version               string      `json:"version"`
	SettlementVersion     *value      `json:"settlement_Series.version,omitempty"`
	OriginalTransactionID *string     `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	MeteringPointType     value       `json:"marketEvaluationPoint.type"`
	SettlementMethod      *value      `json:"marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea              codedValue  `json:"meteringGridArea_Domain.mRID"`
	EnergySupplierID      *codedValue `json:"energySupplier_MarketParticipant.mRID,omitempty"`
	BalanceResponsibleID  *codedValue `json:"balanceResponsibleParty_MarketParticipant.mRID,omitempty"`
	Product               string      `json:"product"`
	MeasurementUnit       value       `json:"quantity_Measure_Unit.name"`
	Period                jsonPeriod  `json:"Period"`
}

type jsonPeriod struct {
	Resolution   string       `json:"resolution"`
	TimeInterval jsonInterval `json:"timeInterval"`
	Points       []jsonPoint  `json:"Point"`
}

type jsonInterval struct {
	Start value `json:"start"`
	End   value `json:"end"`
}

type jsonPoint struct {
	Position struct {
		Value int `json:"value"`
	} `json:"position"`
	Quantity *json.Number `json:"quantity,omitempty"`
	Quality  *value       `json:"quality,omitempty"`
}

type CIMJSONWriter struct{}

var _ Writer = (*CIMJSONWriter)(nil)

func NewCIMJSONWriter() *CIMJSONWriter {
	return &CIMJSONWriter{}
}

func (w *CIMJSONWriter) Format() market.DocumentFormat { return market.DocumentFormatJSON }

func (w *CIMJSONWriter) Write(header outgoing.Header, series []outgoing.AcceptedEnergyResultTimeSeries) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	c := &coder{}

	doc := jsonDocument{
		MRID:               header.MessageID,
		Type:               value{market.MessageTypeNotifyAggregatedMeasureData},
		ProcessType:        value{code(c, market.CIMBusinessReasons, header.BusinessReason)},
		BusinessSectorType: value{market.BusinessTypeElectricity},
		SenderID:           party(header.SenderID),
		SenderRole:         value{code(c, market.CIMActorRoles, header.SenderRole)},
		ReceiverID:         party(header.ReceiverID),
		ReceiverRole:       value{code(c, market.CIMActorRoles, header.ReceiverRole)},
		CreatedDateTime:    created(header.CreatedAt),
		Series:             make([]jsonSeries, 0, len(series)),
	}
	for _, s := range series {
		js := jsonSeries{
			MRID:                  s.TransactionID,
			Version:               strconv.FormatInt(s.Version, 10),
			OriginalTransactionID: s.OriginalTransactionID,
			MeteringPointType:     value{code(c, market.CIMMeteringPointTypes, s.MeteringPointType)},
			GridArea:              codedValue{market.CodingSchemeGridArea, s.GridArea.Code},
			Product:               market.ProductEnergyActive,
			MeasurementUnit:       value{code(c, market.CIMMeasurementUnits, s.MeasurementUnit)},
			Period: jsonPeriod{
				Resolution: code(c, market.CIMResolutions, s.Resolution),
				TimeInterval: jsonInterval{
					Start: value{period(s.Start)},
					End:   value{period(s.End)},
				},
				Points: make([]jsonPoint, 0, len(s.Points)),
			},
		}
		if s.SettlementVersion != nil && header.BusinessReason == market.BusinessReasonCorrection {
			js.SettlementVersion = &value{code(c, market.CIMSettlementVersions, *s.SettlementVersion)}
		}
		if s.SettlementMethod != nil {
			js.SettlementMethod = &value{code(c, market.CIMSettlementMethods, *s.SettlementMethod)}
		}
		if s.EnergySupplierID != nil {
			p := party(*s.EnergySupplierID)
			js.EnergySupplierID = &p
		}
		if s.BalanceResponsibleID != nil {
			p := party(*s.BalanceResponsibleID)
			js.BalanceResponsibleID = &p
		}
		for _, point := range s.Points {
			var jp jsonPoint
			jp.Position.Value = point.Position
			if point.Quantity != nil {
				n := json.Number(quantity(point.Quantity))
				jp.Quantity = &n
			}
			if q, ok := cimQuality(c, point.Quality); ok {
				jp.Quality = &value{q}
			}
			js.Period.Points = append(js.Period.Points, jp)
		}
		doc.Series = append(doc.Series, js)
	}
	if c.err != nil {
		return nil, errors.Wrap(c.err, "writing CIM JSON")
	}

	out, err := json.Marshal(jsonEnvelope{Document: doc})
	if err != nil {
		return nil, errors.Wrap(err, "writing CIM JSON")
	}
	return out, nil
}

func party(id market.ActorNumber) codedValue {
	return codedValue{id.CodingScheme(), id.String()}
}
