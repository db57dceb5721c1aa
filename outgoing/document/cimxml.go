package document

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing"
)

const cimNamespace = "urn:ediel.org:measure:notifyaggregatedmeasuredata:0:1"

type CIMXMLWriter struct{}

var _ Writer = (*CIMXMLWriter)(nil)

func NewCIMXMLWriter() *CIMXMLWriter {
	return &CIMXMLWriter{}
}

func (w *CIMXMLWriter) Format() market.DocumentFormat { return market.DocumentFormatXML }

func (w *CIMXMLWriter) Write(header outgoing.Header, series []outgoing.AcceptedEnergyResultTimeSeries) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	c := &coder{}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("cim:NotifyAggregatedMeasureData_MarketDocument")
	root.CreateAttr("xmlns:cim", cimNamespace)

	cimText(root, "mRID", header.MessageID)
	cimText(root, "type", market.MessageTypeNotifyAggregatedMeasureData)
	cimText(root, "process.processType", code(c, market.CIMBusinessReasons, header.BusinessReason))
	cimText(root, "businessSector.type", market.BusinessTypeElectricity)
	cimParty(root, "sender_MarketParticipant.mRID", header.SenderID)
	cimText(root, "sender_MarketParticipant.marketRole.type", code(c, market.CIMActorRoles, header.SenderRole))
	cimParty(root, "receiver_MarketParticipant.mRID", header.ReceiverID)
	cimText(root, "receiver_MarketParticipant.marketRole.type", code(c, market.CIMActorRoles, header.ReceiverRole))
	cimText(root, "createdDateTime", created(header.CreatedAt))

	for _, s := range series {
		e := root.CreateElement("cim:Series")
		cimText(e, "mRID", s.TransactionID)
		cimText(e, "version", strconv.FormatInt(s.Version, 10))
		if s.SettlementVersion != nil && header.BusinessReason == market.BusinessReasonCorrection {
			cimText(e, "settlement_Series.version", code(c, market.CIMSettlementVersions, *s.SettlementVersion))
		}
		if s.OriginalTransactionID != nil {
			cimText(e, "originalTransactionIDReference_Series.mRID", *s.OriginalTransactionID)
		}
		cimText(e, "marketEvaluationPoint.type", code(c, market.CIMMeteringPointTypes, s.MeteringPointType))
		if s.SettlementMethod != nil {
			cimText(e, "marketEvaluationPoint.settlementMethod", code(c, market.CIMSettlementMethods, *s.SettlementMethod))
		}
		cimText(e, "meteringGridArea_Domain.mRID", s.GridArea.Code).CreateAttr("codingScheme", market.CodingSchemeGridArea)
		if s.EnergySupplierID != nil {
			cimParty(e, "energySupplier_MarketParticipant.mRID", *s.EnergySupplierID)
		}
		if s.BalanceResponsibleID != nil {
			cimParty(e, "balanceResponsibleParty_MarketParticipant.mRID", *s.BalanceResponsibleID)
		}
		cimText(e, "product", market.ProductEnergyActive)
		cimText(e, "quantity_Measure_Unit.name", code(c, market.CIMMeasurementUnits, s.MeasurementUnit))

		p := e.CreateElement("cim:Period")
		cimText(p, "resolution", code(c, market.CIMResolutions, s.Resolution))
		interval := p.CreateElement("cim:timeInterval")
		cimText(interval, "start", period(s.Start))
		cimText(interval, "end", period(s.End))
		for _, point := range s.Points {
			pe := p.CreateElement("cim:Point")
			cimText(pe, "position", strconv.Itoa(point.Position))
			if point.Quantity != nil {
				cimText(pe, "quantity", quantity(point.Quantity))
			}
			if q, ok := cimQuality(c, point.Quality); ok {
				cimText(pe, "quality", q)
			}
		}
	}
	if c.err != nil {
		return nil, errors.Wrap(c.err, "writing CIM XML")
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func cimText(parent *etree.Element, name, value string) *etree.Element {
	e := parent.CreateElement("cim:" + name)
	e.SetText(value)
	return e
}

func cimParty(parent *etree.Element, name string, id market.ActorNumber) {
	cimText(parent, name, id.String()).CreateAttr("codingScheme", id.CodingScheme())
}
