package incoming

import (
	"context"
	"io"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

// CIMXMLParser parses CIM XML documents.
type CIMXMLParser struct {
	provider *schema.Provider
}

var _ MessageParser = (*CIMXMLParser)(nil)

func NewCIMXMLParser(provider *schema.Provider) *CIMXMLParser {
	return &CIMXMLParser{provider: provider}
}

func (p *CIMXMLParser) Parse(ctx context.Context, r io.ReadSeeker, documentType market.IncomingDocumentType) (*Message, []ValidationError, error) {
	c := &collector{}
	root, err := readXML(ctx, p.provider, r, market.DocumentFormatXML, documentType, cimSchemaKey, c)
	if err != nil {
		return nil, nil, err
	}
	if c.failed() {
		return c.result(nil)
	}

	msg := &Message{
		DocumentType: documentType,
		Format:       market.DocumentFormatXML,
		Header: MessageHeader{
			MessageID:      root.child("mRID").text(),
			MessageType:    root.child("type").text(),
			BusinessReason: root.child("process.processType").text(),
			BusinessType:   root.child("businessSector.type").text(),
			SenderID:       root.child("sender_MarketParticipant.mRID").text(),
			SenderRole:     root.child("sender_MarketParticipant.marketRole.type").text(),
			ReceiverID:     root.child("receiver_MarketParticipant.mRID").text(),
			ReceiverRole:   root.child("receiver_MarketParticipant.marketRole.type").text(),
			CreatedAt:      root.child("createdDateTime").text(),
		},
	}
	for _, s := range root.all("Series") {
		series := Series{
			TransactionID:        s.child("mRID").text(),
			SettlementVersion:    s.child("settlement_Series.version").optional(),
			MeteringPointType:    s.child("marketEvaluationPoint.type").optional(),
			SettlementMethod:     s.child("marketEvaluationPoint.settlementMethod").optional(),
			Start:                s.child("start_DateAndOrTime.dateTime").text(),
			End:                  s.child("end_DateAndOrTime.dateTime").optional(),
			GridArea:             s.child("meteringGridArea_Domain.mRID").optional(),
			EnergySupplierID:     s.child("energySupplier_MarketParticipant.mRID").optional(),
			BalanceResponsibleID: s.child("balanceResponsibleParty_MarketParticipant.mRID").optional(),
			ChargeOwner:          s.child("chargeTypeOwner_MarketParticipant.mRID").optional(),
			Resolution:           s.child("aggregationSeries_Period.resolution").optional(),
		}
		for _, ct := range s.all("ChargeType") {
			series.ChargeTypes = append(series.ChargeTypes, ChargeType{
				ID:   ct.child("mRID").optional(),
				Type: ct.child("type").optional(),
			})
		}
		msg.Series = append(msg.Series, series)
	}
	return c.result(msg)
}
