package market

import "strings"

// DocumentFormat is the wire format of a market document.
type DocumentFormat int

const (
	_ DocumentFormat = iota
	DocumentFormatJSON
	DocumentFormatXML
	DocumentFormatEbix
)

func (f DocumentFormat) String() string {
	switch f {
	case DocumentFormatJSON:
		return "Json"
	case DocumentFormatXML:
		return "Xml"
	case DocumentFormatEbix:
		return "Ebix"
	default:
		return "Unknown"
	}
}

// ContentType returns the media type used on the wire.
func (f DocumentFormat) ContentType() string {
	if f == DocumentFormatJSON {
		return "application/json; charset=utf-8"
	}
	return "application/xml; charset=utf-8"
}

// ParseDocumentFormat accepts the format names case-insensitively.
func ParseDocumentFormat(s string) (DocumentFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return DocumentFormatJSON, true
	case "xml":
		return DocumentFormatXML, true
	case "ebix":
		return DocumentFormatEbix, true
	}
	return 0, false
}

// IncomingDocumentType lists the documents the gateway accepts from actors.
type IncomingDocumentType int

const (
	_ IncomingDocumentType = iota
	IncomingDocumentTypeRequestAggregatedMeasureData
	IncomingDocumentTypeRequestWholesaleSettlement
)

func (t IncomingDocumentType) String() string {
	switch t {
	case IncomingDocumentTypeRequestAggregatedMeasureData:
		return "RequestAggregatedMeasureData"
	case IncomingDocumentTypeRequestWholesaleSettlement:
		return "RequestWholesaleSettlement"
	default:
		return "Unknown"
	}
}

// ParseIncomingDocumentType accepts the document names case-insensitively.
func ParseIncomingDocumentType(s string) (IncomingDocumentType, bool) {
	for _, t := range []IncomingDocumentType{
		IncomingDocumentTypeRequestAggregatedMeasureData,
		IncomingDocumentTypeRequestWholesaleSettlement,
	} {
		if strings.EqualFold(t.String(), s) {
			return t, true
		}
	}
	return 0, false
}

// ProcessType names the business process a delegation grants.
type ProcessType int

const (
	_ ProcessType = iota
	ProcessTypeRequestEnergyResults
	ProcessTypeRequestWholesaleResults
	ProcessTypeReceiveEnergyResults
)

func (p ProcessType) String() string {
	switch p {
	case ProcessTypeRequestEnergyResults:
		return "RequestEnergyResults"
	case ProcessTypeRequestWholesaleResults:
		return "RequestWholesaleResults"
	case ProcessTypeReceiveEnergyResults:
		return "ReceiveEnergyResults"
	default:
		return "Unknown"
	}
}

// ProcessType returns the delegable process that a document belongs to.
func (t IncomingDocumentType) ProcessType() ProcessType {
	if t == IncomingDocumentTypeRequestWholesaleSettlement {
		return ProcessTypeRequestWholesaleResults
	}
	return ProcessTypeRequestEnergyResults
}

// MessageType returns the CIM type code expected in the document header.
func (t IncomingDocumentType) MessageType() string {
	if t == IncomingDocumentTypeRequestWholesaleSettlement {
		return MessageTypeRequestWholesaleSettlement
	}
	return MessageTypeRequestAggregatedMeasureData
}
