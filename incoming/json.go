package incoming

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

// jsonSchemaVersion is the only CIM JSON schema version in use.
const jsonSchemaVersion = "0"

// JSONParser parses CIM JSON documents. The stream is read twice: once to
// validate it against the schema and once, after seeking back to the start,
// to decode it into typed structs.
type JSONParser struct {
	provider *schema.Provider
}

var _ MessageParser = (*JSONParser)(nil)

func NewJSONParser(provider *schema.Provider) *JSONParser {
	return &JSONParser{provider: provider}
}

func (p *JSONParser) Parse(ctx context.Context, r io.ReadSeeker, documentType market.IncomingDocumentType) (*Message, []ValidationError, error) {
	c := &collector{}

	s, found, err := p.provider.JSON(ctx, documentType.String(), jsonSchemaVersion)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		c.add(InvalidBusinessReasonOrVersion(documentType.String(), documentType.String(), jsonSchemaVersion))
		return c.result(nil)
	}

	var doc interface{}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		c.structural("#", err.Error())
		return c.result(nil)
	}
	if _, err := dec.Token(); err != io.EOF {
		c.structural("#", "The document has content after the top-level value")
		return c.result(nil)
	}
	if obj, ok := doc.(map[string]interface{}); ok && len(obj) == 0 {
		c.structural("#", "The document is an empty object")
		return c.result(nil)
	}

	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, nil, errors.Wrap(err, "evaluating schema")
	}
	for _, e := range res.Errors() {
		c.structural(instanceLocation(e), e.Description())
	}
	if c.failed() {
		return c.result(nil)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, nil, errors.Wrap(err, "rewinding document")
	}
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, nil, errors.Wrap(err, "decoding document")
	}
	var d jsonDocument
	if err := json.Unmarshal(envelope[documentType.String()+"_MarketDocument"], &d); err != nil {
		return nil, nil, errors.Wrap(err, "decoding document")
	}
	return c.result(d.message(documentType))
}

// instanceLocation renders the JSON pointer of the value an error refers to,
// e.g. "#/RequestAggregatedMeasureData_MarketDocument/Series/0/mRID".
func instanceLocation(e gojsonschema.ResultError) string {
	return "#" + strings.TrimPrefix(e.Context().String("/"), gojsonschema.STRING_CONTEXT_ROOT)
}

type jsonCode struct {
	Value string `json:"value"`
}

func (c *jsonCode) text() string {
	if c == nil {
		return ""
	}
	return c.Value
}

func (c *jsonCode) optional() *string {
	return optional(c.text())
}

type jsonID struct {
	CodingScheme string `json:"codingScheme"`
	Value        string `json:"value"`
}

func (id *jsonID) text() string {
	if id == nil {
		return ""
	}
	return id.Value
}

func (id *jsonID) optional() *string {
	return optional(id.text())
}

type jsonDocument struct {
	MRID            string    `json:"mRID"`
	Type            *jsonCode `json:"type"`
	ProcessType     *jsonCode `json:"process.processType"`
	BusinessSector  *jsonCode `json:"businessSector.type"`
	Sender          *jsonID   `json:"sender_MarketParticipant.mRID"`
	SenderRole      *jsonCode `json:"sender_MarketParticipant.marketRole.type"`
	Receiver        *jsonID   `json:"receiver_MarketParticipant.mRID"`
	ReceiverRole    *jsonCode `json:"receiver_MarketParticipant.marketRole.type"`
	CreatedDateTime string    `json:"createdDateTime"`

	Series []jsonSeries `json:"Series"`
}

type jsonSeries struct {
	MRID               string           `json:"mRID"`
	SettlementVersion  *jsonCode        `json:"settlement_Series.version"`
	MeteringPointType  *jsonCode        `json:"marketEvaluationPoint.type"`
	SettlementMethod   *jsonCode        `json:"marketEvaluationPoint.settlementMethod"`
	Start              string           `json:"start_DateAndOrTime.dateTime"`
	End                string           `json:"end_DateAndOrTime.dateTime"`
	GridArea           *jsonID          `json:"meteringGridArea_Domain.mRID"`
	EnergySupplier     *jsonID          `json:"energySupplier_MarketParticipant.mRID"`
	BalanceResponsible *jsonID          `json:"balanceResponsibleParty_MarketParticipant.mRID"`
	ChargeOwner        *jsonID          `json:"chargeTypeOwner_MarketParticipant.mRID"`
	Resolution         string           `json:"aggregationSeries_Period.resolution"`
	ChargeTypes        []jsonChargeType `json:"ChargeType"`
}

type jsonChargeType struct {
	MRID string    `json:"mRID"`
	Type *jsonCode `json:"type"`
}

func (d *jsonDocument) message(documentType market.IncomingDocumentType) *Message {
	msg := &Message{
		DocumentType: documentType,
		Format:       market.DocumentFormatJSON,
		Header: MessageHeader{
			MessageID:      d.MRID,
			MessageType:    d.Type.text(),
			BusinessReason: d.ProcessType.text(),
			BusinessType:   d.BusinessSector.text(),
			SenderID:       d.Sender.text(),
			SenderRole:     d.SenderRole.text(),
			ReceiverID:     d.Receiver.text(),
			ReceiverRole:   d.ReceiverRole.text(),
			CreatedAt:      d.CreatedDateTime,
		},
	}
	for _, s := range d.Series {
		series := Series{
			TransactionID:        s.MRID,
			SettlementVersion:    s.SettlementVersion.optional(),
			MeteringPointType:    s.MeteringPointType.optional(),
			SettlementMethod:     s.SettlementMethod.optional(),
			Start:                s.Start,
			End:                  optional(s.End),
			GridArea:             s.GridArea.optional(),
			EnergySupplierID:     s.EnergySupplier.optional(),
			BalanceResponsibleID: s.BalanceResponsible.optional(),
			ChargeOwner:          s.ChargeOwner.optional(),
			Resolution:           optional(s.Resolution),
		}
		for _, ct := range s.ChargeTypes {
			series.ChargeTypes = append(series.ChargeTypes, ChargeType{
				ID:   optional(ct.MRID),
				Type: ct.Type.optional(),
			})
		}
		msg.Series = append(msg.Series, series)
	}
	return msg
}
