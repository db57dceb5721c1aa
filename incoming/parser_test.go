package incoming

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridexchange/edi-gateway/internal/testutil"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

const (
	messageID     = "123564789123564789123564789123564789"
	transactionID = "555555555555555555555555555555555555"
	supplierID    = "1111111111111"
)

var (
	aggregated = market.IncomingDocumentTypeRequestAggregatedMeasureData
	wholesale  = market.IncomingDocumentTypeRequestWholesaleSettlement
)

func strptr(s string) *string { return &s }

func parse(t *testing.T, doc []byte, format market.DocumentFormat, documentType market.IncomingDocumentType) Result {
	t.Helper()
	res, err := NewParsers(schema.NewProvider()).Parse(context.Background(), bytes.NewReader(doc), format, documentType)
	require.NoError(t, err)
	return res
}

func TestParsers_Parse_RequestAggregatedMeasureData(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fixture string
		format  market.DocumentFormat
	}{
		"CIM JSON": {"incoming/request-aggregated-measure-data.json", market.DocumentFormatJSON},
		"CIM XML":  {"incoming/request-aggregated-measure-data.xml", market.DocumentFormatXML},
		"ebIX":     {"incoming/request-aggregated-measure-data.ebix.xml", market.DocumentFormatEbix},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := parse(t, testutil.Fixture(t, tc.fixture), tc.format, aggregated)
			require.Empty(t, res.Errors)
			require.True(t, res.Success())

			msg := res.Message
			assert.Equal(t, aggregated, msg.DocumentType)
			assert.Equal(t, tc.format, msg.Format)
			assert.Equal(t, MessageHeader{
				MessageID:      messageID,
				MessageType:    "E74",
				BusinessReason: "D04",
				SenderID:       supplierID,
				SenderRole:     "DDQ",
				ReceiverID:     "5790001330552",
				ReceiverRole:   "DGL",
				CreatedAt:      "2022-12-17T09:30:47Z",
				BusinessType:   "23",
			}, msg.Header)
			assert.Equal(t, []Series{{
				TransactionID:     transactionID,
				GridArea:          strptr("244"),
				MeteringPointType: strptr("E17"),
				SettlementMethod:  strptr("D01"),
				Start:             "2022-06-17T22:00:00Z",
				End:               strptr("2022-07-22T22:00:00Z"),
				EnergySupplierID:  strptr(supplierID),
			}}, msg.Series)
			assert.Equal(t, []string{transactionID}, msg.TransactionIDs())
		})
	}
}

func TestParsers_Parse_RequestWholesaleSettlement(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fixture string
		format  market.DocumentFormat
	}{
		"CIM JSON": {"incoming/request-wholesale-settlement.json", market.DocumentFormatJSON},
		"CIM XML":  {"incoming/request-wholesale-settlement.xml", market.DocumentFormatXML},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := parse(t, testutil.Fixture(t, tc.fixture), tc.format, wholesale)
			require.True(t, res.Success(), "%v", res.Errors)

			msg := res.Message
			assert.Equal(t, "D21", msg.Header.MessageType)
			assert.Equal(t, "D05", msg.Header.BusinessReason)
			assert.Equal(t, []Series{{
				TransactionID:    transactionID,
				GridArea:         strptr("244"),
				Start:            "2022-06-17T22:00:00Z",
				End:              strptr("2022-07-22T22:00:00Z"),
				EnergySupplierID: strptr(supplierID),
				ChargeOwner:      strptr("5799999933318"),
				Resolution:       strptr("PT1H"),
				ChargeTypes:      []ChargeType{{ID: strptr("EA-001"), Type: strptr("D03")}},
			}}, msg.Series)
		})
	}
}

func TestParsers_Parse_Rejected(t *testing.T) {
	t.Parallel()

	fixture := func(rel string) string {
		return string(testutil.MustFixture(rel))
	}
	jsonDoc := fixture("incoming/request-aggregated-measure-data.json")
	xmlDoc := fixture("incoming/request-aggregated-measure-data.xml")
	ebixDoc := fixture("incoming/request-aggregated-measure-data.ebix.xml")
	tooLong := messageID + "0"

	tests := map[string]struct {
		doc          string
		format       market.DocumentFormat
		documentType market.IncomingDocumentType
		kind         ErrorKind
		target       string
		message      string
	}{
		"Malformed JSON": {
			doc:     `{"RequestAggregatedMeasureData_MarketDocument": {`,
			format:  market.DocumentFormatJSON,
			kind:    KindStructural,
			target:  "#",
			message: "unexpected EOF",
		},
		"Empty JSON object": {
			doc:     `{}`,
			format:  market.DocumentFormatJSON,
			kind:    KindStructural,
			target:  "#",
			message: "The document is an empty object",
		},
		"JSON with trailing content": {
			doc:     jsonDoc + "garbage{",
			format:  market.DocumentFormatJSON,
			kind:    KindStructural,
			target:  "#",
			message: "The document has content after the top-level value",
		},
		"Two JSON documents": {
			doc:    jsonDoc + jsonDoc,
			format: market.DocumentFormatJSON,
			kind:   KindStructural,
			target: "#",
		},
		"JSON schema violation": {
			doc:    strings.Replace(jsonDoc, messageID, tooLong, 1),
			format: market.DocumentFormatJSON,
			kind:   KindStructural,
			target: "#/RequestAggregatedMeasureData_MarketDocument/mRID",
		},
		"JSON missing required property": {
			doc:    strings.Replace(jsonDoc, `"createdDateTime": "2022-12-17T09:30:47Z",`, "", 1),
			format: market.DocumentFormatJSON,
			kind:   KindStructural,
			target: "#/RequestAggregatedMeasureData_MarketDocument",
		},
		"JSON series item violation": {
			doc:    strings.Replace(jsonDoc, transactionID, transactionID+"5", 1),
			format: market.DocumentFormatJSON,
			kind:   KindStructural,
			target: "#/RequestAggregatedMeasureData_MarketDocument/Series/0/mRID",
		},
		"Malformed XML": {
			doc:    `<cim:RequestAggregatedMeasureData_MarketDocument`,
			format: market.DocumentFormatXML,
			kind:   KindStructural,
		},
		"XML without namespace": {
			doc:     `<RequestAggregatedMeasureData_MarketDocument/>`,
			format:  market.DocumentFormatXML,
			kind:    KindStructural,
			target:  "/RequestAggregatedMeasureData_MarketDocument",
			message: "The root element has no namespace",
		},
		"XML namespace without version": {
			doc:    `<RequestAggregatedMeasureData_MarketDocument xmlns="urn:ediel.org:measure"/>`,
			format: market.DocumentFormatXML,
			kind:   KindStructural,
			target: "/RequestAggregatedMeasureData_MarketDocument",
		},
		"XML unknown version": {
			doc:     strings.ReplaceAll(xmlDoc, "requestaggregatedmeasuredata:0:1", "requestaggregatedmeasuredata:0:2"),
			format:  market.DocumentFormatXML,
			kind:    KindBusinessReasonOrVersion,
			target:  "RequestAggregatedMeasureData",
			message: "Schema version 0.2 for business process type requestaggregatedmeasuredata does not exist",
		},
		"XML five segment namespace": {
			doc:     `<RequestAggregatedMeasureData_MarketDocument xmlns="urn:ediel.org:structure:requestaggregatedmeasuredata:3"/>`,
			format:  market.DocumentFormatXML,
			kind:    KindBusinessReasonOrVersion,
			target:  "RequestAggregatedMeasureData",
			message: "Schema version 3 for business process type requestaggregatedmeasuredata does not exist",
		},
		"XML of another document type": {
			doc:          xmlDoc,
			format:       market.DocumentFormatXML,
			documentType: wholesale,
			kind:         KindBusinessReasonOrVersion,
			target:       "RequestWholesaleSettlement",
		},
		"XML schema violation": {
			doc:     strings.Replace(xmlDoc, messageID, tooLong, 1),
			format:  market.DocumentFormatXML,
			kind:    KindStructural,
			target:  "/RequestAggregatedMeasureData_MarketDocument/mRID",
			message: "The 'mRID' element is invalid - The actual length is greater than the MaxLength value",
		},
		"ebIX unknown version": {
			doc:     strings.ReplaceAll(ebixDoc, "RequestAggregatedMeteredData:v3", "RequestAggregatedMeteredData:v2"),
			format:  market.DocumentFormatEbix,
			kind:    KindBusinessReasonOrVersion,
			message: "Schema version 2 for business process type DK_RequestAggregatedMeteredData does not exist",
			target:  "RequestAggregatedMeasureData",
		},
		"ebIX wholesale request": {
			doc:          ebixDoc,
			format:       market.DocumentFormatEbix,
			documentType: wholesale,
			kind:         KindBusinessReasonOrVersion,
			target:       "RequestWholesaleSettlement",
		},
		"ebIX schema violation": {
			doc:     strings.Replace(ebixDoc, `schemeAgencyIdentifier="9">1111111111111</ns0:Identification>`, `>1111111111111</ns0:Identification>`, 1),
			format:  market.DocumentFormatEbix,
			kind:    KindStructural,
			target:  "/DK_RequestAggregatedMeteredData/HeaderEnergyDocument/SenderEnergyParty/Identification",
			message: "The required attribute 'schemeAgencyIdentifier' is missing",
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			documentType := tc.documentType
			if documentType == 0 {
				documentType = aggregated
			}
			res := parse(t, []byte(tc.doc), tc.format, documentType)
			assert.False(t, res.Success())
			assert.Nil(t, res.Message)
			require.Len(t, res.Errors, 1, "%v", res.Errors)

			e := res.Errors[0]
			assert.Equal(t, tc.kind, e.Kind)
			if tc.kind == KindStructural {
				assert.Equal(t, CodeInvalidMessageStructure, e.Code)
			}
			if tc.target != "" {
				assert.Equal(t, tc.target, e.Target)
			}
			if tc.message != "" {
				assert.Equal(t, tc.message, e.Message)
			} else {
				assert.NotEmpty(t, e.Message)
			}
		})
	}
}

func TestParsers_Parse_EveryViolationIsReported(t *testing.T) {
	t.Parallel()

	doc := string(testutil.Fixture(t, "incoming/request-aggregated-measure-data.xml"))
	doc = strings.Replace(doc, messageID, messageID+"0", 1)
	doc = strings.Replace(doc, "<cim:type>E74</cim:type>", "<cim:type>E740</cim:type>", 1)
	doc = strings.Replace(doc, `codingScheme="NDK"`, `codingScheme="XXX"`, 1)

	res := parse(t, []byte(doc), market.DocumentFormatXML, aggregated)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "/RequestAggregatedMeasureData_MarketDocument/mRID", res.Errors[0].Target)
	assert.Equal(t, "/RequestAggregatedMeasureData_MarketDocument/type", res.Errors[1].Target)
	assert.Equal(t, "/RequestAggregatedMeasureData_MarketDocument/Series/meteringGridArea_Domain.mRID", res.Errors[2].Target)
}

func TestParsers_Parse_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParsers(schema.NewProvider())
	for _, format := range []market.DocumentFormat{market.DocumentFormatJSON, market.DocumentFormatXML, market.DocumentFormatEbix} {
		_, err := p.Parse(ctx, strings.NewReader("{}"), format, aggregated)
		assert.Error(t, err, format.String())
	}
}

func TestParsers_Parse_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := NewParsers(schema.NewProvider()).Parse(context.Background(), strings.NewReader("{}"), market.DocumentFormat(42), aggregated)
	assert.Error(t, err)
}

func TestCIMSchemaKey(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		namespace string
		want      schema.Key
		err       bool
	}{
		"Six segments": {
			namespace: "urn:ediel.org:measure:requestaggregatedmeasuredata:0:1",
			want:      schema.Key{Format: market.DocumentFormatXML, ProcessType: "requestaggregatedmeasuredata", Version: "0.1"},
		},
		"Five segments": {
			namespace: "urn:ediel.org:structure:requestchangebillingmasterdata:3",
			want:      schema.Key{Format: market.DocumentFormatXML, ProcessType: "requestchangebillingmasterdata", Version: "3"},
		},
		"Too short": {
			namespace: "urn:ediel.org:measure",
			err:       true,
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			got, err := cimSchemaKey(tc.namespace)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEbixSchemaKey(t *testing.T) {
	t.Parallel()

	got, err := ebixSchemaKey("un:unece:260:data:EEM-DK_RequestAggregatedMeteredData:v3")
	require.NoError(t, err)
	assert.Equal(t, schema.Key{Format: market.DocumentFormatEbix, ProcessType: "DK_RequestAggregatedMeteredData", Version: "3"}, got)

	_, err = ebixSchemaKey("un:unece:260:data")
	assert.Error(t, err)
}
