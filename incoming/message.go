// Package incoming parses market documents sent by actors into typed
// messages.
package incoming

import "github.com/gridexchange/edi-gateway/market"

// MessageHeader is the document header shared by every series of a message.
// It is extracted once while parsing and never changed afterwards.
type MessageHeader struct {
	MessageID      string
	MessageType    string
	BusinessReason string
	SenderID       string
	SenderRole     string
	ReceiverID     string
	ReceiverRole   string
	CreatedAt      string
	BusinessType   string
}

// Series is one business transaction of a message, e.g. a request for the
// results of one grid area. Optional fields are nil when the document omits
// them.
type Series struct {
	TransactionID        string
	GridArea             *string
	MeteringPointType    *string
	SettlementMethod     *string
	Start                string
	End                  *string
	EnergySupplierID     *string
	BalanceResponsibleID *string
	SettlementVersion    *string

	// Set for RequestWholesaleSettlement only.
	ChargeOwner *string
	Resolution  *string
	ChargeTypes []ChargeType
}

// ChargeType narrows a wholesale request to one charge.
type ChargeType struct {
	ID   *string
	Type *string
}

// Message is a schema-valid incoming document.
type Message struct {
	DocumentType market.IncomingDocumentType
	Format       market.DocumentFormat
	Header       MessageHeader
	Series       []Series
}

// TransactionIDs returns the transaction id of every series in document
// order.
func (m *Message) TransactionIDs() []string {
	ids := make([]string, 0, len(m.Series))
	for _, s := range m.Series {
		ids = append(ids, s.TransactionID)
	}
	return ids
}

// optional returns nil for the empty string. Parsers use it for elements that
// may be left out of a document.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
