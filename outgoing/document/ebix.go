package document

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing"
)

const (
	ebixNamespace = "un:unece:260:data:EEM-DK_AggregatedMeteredDataTimeSeries:v3"

	// ebixAgencyUNECE and ebixAgencyGS1 are the list and scheme agencies of
	// the codes and identifiers used in the documents.
	ebixAgencyUNECE = "260"
	ebixAgencyGS1   = "9"

	ebixFunctionOriginal = "9"
	ebixCountryDK        = "DK"
)

type EbixWriter struct{}

var _ Writer = (*EbixWriter)(nil)

func NewEbixWriter() *EbixWriter {
	return &EbixWriter{}
}

func (w *EbixWriter) Format() market.DocumentFormat { return market.DocumentFormatEbix }

func (w *EbixWriter) Write(header outgoing.Header, series []outgoing.AcceptedEnergyResultTimeSeries) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	c := &coder{}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ns0:DK_AggregatedMeteredDataTimeSeries")
	root.CreateAttr("xmlns:ns0", ebixNamespace)

	h := root.CreateElement("ns0:HeaderEnergyDocument")
	ebixText(h, "Identification", header.MessageID)
	ebixCode(h, "DocumentType", market.MessageTypeNotifyAggregatedMeasureData, ebixAgencyUNECE)
	ebixText(h, "Creation", created(header.CreatedAt))
	ebixParty(h, "SenderEnergyParty", header.SenderID)
	ebixParty(h, "RecipientEnergyParty", header.ReceiverID)

	pc := root.CreateElement("ns0:ProcessEnergyContext")
	ebixCode(pc, "EnergyBusinessProcess", code(c, market.EbixBusinessReasons, header.BusinessReason), ebixAgencyUNECE)
	ebixCode(pc, "EnergyBusinessProcessRole", code(c, market.EbixActorRoles, header.ReceiverRole), ebixAgencyUNECE)
	ebixCode(pc, "EnergyIndustryClassification", market.BusinessTypeElectricity, ebixAgencyUNECE)

	for _, s := range series {
		e := root.CreateElement("ns0:PayloadEnergyTimeSeries")
		ebixText(e, "Identification", s.TransactionID)
		ebixCode(e, "Function", ebixFunctionOriginal, ebixAgencyUNECE)
		p := e.CreateElement("ns0:ObservationTimeSeriesPeriod")
		ebixCode(p, "ResolutionDuration", code(c, market.EbixResolutions, s.Resolution), "")
		ebixText(p, "Start", created(s.Start))
		ebixText(p, "End", created(s.End))
		if s.OriginalTransactionID != nil {
			ebixText(e, "OriginalBusinessDocument", *s.OriginalTransactionID)
		}
		if s.SettlementVersion != nil && header.BusinessReason == market.BusinessReasonCorrection {
			ebixCode(e, "SettlementVersion", code(c, market.EbixSettlementVersions, *s.SettlementVersion), ebixAgencyUNECE)
		}

		product := e.CreateElement("ns0:IncludedProductCharacteristic")
		ebixCode(product, "Identification", market.ProductEnergyActive, ebixAgencyGS1)
		ebixCode(product, "UnitType", code(c, market.EbixMeasurementUnits, s.MeasurementUnit), ebixAgencyUNECE)

		mp := e.CreateElement("ns0:DetailMeasurementMeteringPointCharacteristic")
		ebixCode(mp, "TypeOfMeteringPoint", code(c, market.EbixMeteringPointTypes, s.MeteringPointType), ebixAgencyUNECE)
		if s.SettlementMethod != nil {
			ebixCode(mp, "SettlementMethod", code(c, market.EbixSettlementMethods, *s.SettlementMethod), ebixAgencyUNECE)
		}

		grid := ebixText(e.CreateElement("ns0:MeteringGridAreaUsedDomainLocation"), "Identification", s.GridArea.Code)
		grid.CreateAttr("schemeAgencyIdentifier", ebixAgencyUNECE)
		grid.CreateAttr("schemeIdentifier", ebixCountryDK)

		if s.BalanceResponsibleID != nil {
			ebixParty(e, "BalanceResponsibleEnergyParty", *s.BalanceResponsibleID)
		}
		if s.EnergySupplierID != nil {
			ebixParty(e, "BalanceSupplierEnergyParty", *s.EnergySupplierID)
		}

		for _, point := range s.Points {
			o := e.CreateElement("ns0:IntervalEnergyObservation")
			ebixText(o, "Position", strconv.Itoa(point.Position))
			if point.Quantity != nil {
				ebixText(o, "EnergyQuantity", quantity(point.Quantity))
			}
			if missing(point.Quality) {
				ebixText(o, "QuantityMissing", "true")
				continue
			}
			ebixCode(o, "QuantityQuality", code(c, market.EbixQualities, point.Quality), ebixAgencyUNECE)
		}
	}
	if c.err != nil {
		return nil, errors.Wrap(c.err, "writing ebIX")
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func ebixText(parent *etree.Element, name, value string) *etree.Element {
	e := parent.CreateElement("ns0:" + name)
	e.SetText(value)
	return e
}

func ebixCode(parent *etree.Element, name, value, agency string) {
	e := ebixText(parent, name, value)
	if agency != "" {
		e.CreateAttr("listAgencyIdentifier", agency)
	}
}

func ebixParty(parent *etree.Element, name string, id market.ActorNumber) {
	ebixText(parent.CreateElement("ns0:"+name), "Identification", id.String()).
		CreateAttr("schemeAgencyIdentifier", id.EbixSchemeAgency())
}
