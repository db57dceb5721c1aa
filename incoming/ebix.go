package incoming

import (
	"context"
	"io"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

// EbixXMLParser parses ebIX XML documents.
//
// ebIX headers do not carry the receiver role. Requests are always addressed
// to the metered data administrator, so the role is filled in here.
type EbixXMLParser struct {
	provider *schema.Provider
}

var _ MessageParser = (*EbixXMLParser)(nil)

func NewEbixXMLParser(provider *schema.Provider) *EbixXMLParser {
	return &EbixXMLParser{provider: provider}
}

func (p *EbixXMLParser) Parse(ctx context.Context, r io.ReadSeeker, documentType market.IncomingDocumentType) (*Message, []ValidationError, error) {
	c := &collector{}
	root, err := readXML(ctx, p.provider, r, market.DocumentFormatEbix, documentType, ebixSchemaKey, c)
	if err != nil {
		return nil, nil, err
	}
	if c.failed() {
		return c.result(nil)
	}

	header := root.child("HeaderEnergyDocument")
	process := root.child("ProcessEnergyContext")
	receiverRole, _ := market.EbixActorRoles.Code(market.ActorRoleMeteredDataAdministrator)

	msg := &Message{
		DocumentType: documentType,
		Format:       market.DocumentFormatEbix,
		Header: MessageHeader{
			MessageID:      header.child("Identification").text(),
			MessageType:    header.child("DocumentType").text(),
			CreatedAt:      header.child("Creation").text(),
			SenderID:       header.child("SenderEnergyParty", "Identification").text(),
			ReceiverID:     header.child("RecipientEnergyParty", "Identification").text(),
			BusinessReason: process.child("EnergyBusinessProcess").text(),
			SenderRole:     process.child("EnergyBusinessProcessRole").text(),
			ReceiverRole:   receiverRole,
			BusinessType:   process.child("EnergyIndustryClassification").text(),
		},
	}
	for _, s := range root.all("PayloadRequestAggregatedMeteredData") {
		mp := s.child("DetailMeasurementMeteringPointCharacteristic")
		msg.Series = append(msg.Series, Series{
			TransactionID:        s.child("Identification").text(),
			Start:                s.child("ObservationTimeSeriesPeriod", "Start").text(),
			End:                  s.child("ObservationTimeSeriesPeriod", "End").optional(),
			SettlementVersion:    s.child("SettlementVersion").optional(),
			MeteringPointType:    mp.child("TypeOfMeteringPoint").optional(),
			SettlementMethod:     mp.child("SettlementMethod").optional(),
			GridArea:             s.child("MeteringGridAreaUsedDomainLocation", "Identification").optional(),
			BalanceResponsibleID: s.child("BalanceResponsibleEnergyParty", "Identification").optional(),
			EnergySupplierID:     s.child("BalanceSupplierEnergyParty", "Identification").optional(),
		})
	}
	return c.result(msg)
}
