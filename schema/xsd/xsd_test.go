package xsd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           xmlns="urn:test:sample:0:1"
           targetNamespace="urn:test:sample:0:1"
           elementFormDefault="qualified">
  <xs:element name="Sample" type="Sample_Type"/>
  <xs:complexType name="Sample_Type">
    <xs:sequence>
      <xs:element name="mRID" type="ID_String"/>
      <xs:element name="type" type="Code_Type"/>
      <xs:element name="sender_MarketParticipant.mRID" type="PartyID_String"/>
      <xs:element name="Series" type="Series_Type" maxOccurs="unbounded"/>
    </xs:sequence>
  </xs:complexType>
  <xs:complexType name="Series_Type">
    <xs:sequence>
      <xs:element name="quantity" type="xs:decimal" minOccurs="0"/>
      <xs:element name="start" type="xs:dateTime"/>
      <xs:element name="note" type="xs:string" minOccurs="0" maxOccurs="1"/>
    </xs:sequence>
  </xs:complexType>
  <xs:complexType name="PartyID_String">
    <xs:simpleContent>
      <xs:extension base="ID_String">
        <xs:attribute name="codingScheme" type="Code_Type" use="required"/>
      </xs:extension>
    </xs:simpleContent>
  </xs:complexType>
  <xs:simpleType name="ID_String">
    <xs:restriction base="xs:string">
      <xs:maxLength value="36"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="Code_Type">
    <xs:restriction base="xs:string">
      <xs:enumeration value="A10"/>
      <xs:enumeration value="E74"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`

func mustCompile(t *testing.T) *Schema {
	t.Helper()
	s, err := Compile(strings.NewReader(testSchema))
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, s *Schema, doc string) []Event {
	t.Helper()
	var events []Event
	_, err := s.ValidateReader(strings.NewReader(doc), func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func TestCompile(t *testing.T) {
	t.Parallel()

	s := mustCompile(t)
	assert.Equal(t, "urn:test:sample:0:1", s.TargetNamespace)
	assert.Contains(t, s.roots, "Sample")
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Not XML":        "<xs:schema",
		"Wrong root":     `<xs:element xmlns:xs="http://www.w3.org/2001/XMLSchema" name="a"/>`,
		"No elements":    `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/>`,
		"Unknown type":   `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" type="Nope"/></xs:schema>`,
		"Unknown facet":  `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a"><xs:simpleType><xs:restriction base="xs:string"><xs:whiteSpace value="collapse"/></xs:restriction></xs:simpleType></xs:element></xs:schema>`,
		"Element ref":    `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element ref="a"/></xs:schema>`,
		"Bad builtin":    `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" type="xs:duration"/></xs:schema>`,
		"Bad maxOccurs":  `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" maxOccurs="many"/></xs:schema>`,
		"Broken pattern": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a"><xs:simpleType><xs:restriction base="xs:string"><xs:pattern value="("/></xs:restriction></xs:simpleType></xs:element></xs:schema>`,
	}
	for name, schema := range tests {
		schema := schema
		t.Run(name, func(t *testing.T) {
			_, err := Compile(strings.NewReader(schema))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := mustCompile(t)

	tests := map[string]struct {
		doc  string
		want []Event
	}{
		"Valid": {
			doc: `<Sample xmlns="urn:test:sample:0:1">
				<mRID>1</mRID>
				<type>E74</type>
				<sender_MarketParticipant.mRID codingScheme="A10">5790001330552</sender_MarketParticipant.mRID>
				<Series><quantity>1.5</quantity><start>2022-06-17T22:00Z</start></Series>
				<Series><start>2022-06-17T22:00:00Z</start><note>x</note></Series>
			</Sample>`,
		},
		"Wrong namespace": {
			doc: `<Sample xmlns="urn:test:other:0:1"><mRID>1</mRID></Sample>`,
			want: []Event{{
				Path:    "/Sample",
				Message: "The 'Sample' element is not declared in namespace 'urn:test:sample:0:1'",
			}},
		},
		"Every violation is reported": {
			doc: `<p:Sample xmlns:p="urn:test:sample:0:1">
				<p:mRID>1234567890123456789012345678901234567</p:mRID>
				<p:type>E99</p:type>
				<p:sender_MarketParticipant.mRID>5790001330552</p:sender_MarketParticipant.mRID>
				<p:Series><p:quantity>abc</p:quantity><p:start>2022-06-17T22:00Z</p:start></p:Series>
				<p:Series><p:start>yesterday</p:start><p:unknown/></p:Series>
			</p:Sample>`,
			want: []Event{
				{"/Sample/mRID", "The 'mRID' element is invalid - The actual length is greater than the MaxLength value"},
				{"/Sample/type", "The 'type' element is invalid - The Enumeration constraint failed for value 'E99'"},
				{"/Sample/sender_MarketParticipant.mRID", "The required attribute 'codingScheme' is missing"},
				{"/Sample/Series/quantity", "The 'quantity' element is invalid - The value 'abc' is invalid according to its datatype 'xs:decimal'"},
				{"/Sample/Series[2]/start", "The 'start' element is invalid - The value 'yesterday' is invalid according to its datatype 'xs:dateTime'"},
				{"/Sample/Series[2]/unknown", "The element 'Series' has invalid child element 'unknown'"},
			},
		},
		"Missing required element": {
			doc: `<Sample xmlns="urn:test:sample:0:1">
				<mRID>1</mRID>
				<sender_MarketParticipant.mRID codingScheme="A10">5790001330552</sender_MarketParticipant.mRID>
			</Sample>`,
			want: []Event{
				{"/Sample", "The element 'Sample' has incomplete content. Expected 'type' before 'sender_MarketParticipant.mRID'"},
				{"/Sample", "The element 'Sample' has incomplete content. Expected 'Series'"},
			},
		},
		"Too many occurrences": {
			doc: `<Sample xmlns="urn:test:sample:0:1">
				<mRID>1</mRID>
				<mRID>2</mRID>
				<type>E74</type>
				<sender_MarketParticipant.mRID codingScheme="A10">5790001330552</sender_MarketParticipant.mRID>
				<Series><start>2022-06-17T22:00Z</start></Series>
			</Sample>`,
			want: []Event{
				{"/Sample/mRID[2]", "The element 'mRID' occurs more than 1 time(s)"},
			},
		},
		"Undeclared attribute": {
			doc: `<Sample xmlns="urn:test:sample:0:1" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="x">
				<mRID>1</mRID>
				<type>E74</type>
				<sender_MarketParticipant.mRID codingScheme="A10" extra="1">5790001330552</sender_MarketParticipant.mRID>
				<Series><start>2022-06-17T22:00Z</start></Series>
			</Sample>`,
			want: []Event{
				{"/Sample/sender_MarketParticipant.mRID", "The 'extra' attribute is not declared"},
			},
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, collect(t, s, tc.doc))
		})
	}
}

func TestValidateReader_Malformed(t *testing.T) {
	t.Parallel()

	s := mustCompile(t)
	_, err := s.ValidateReader(strings.NewReader("<Sample"), func(Event) {})
	assert.Error(t, err)
}

func TestSimpleTypeCheck(t *testing.T) {
	t.Parallel()

	amount := &simpleType{
		name:           "Amount",
		base:           builtinType("decimal"),
		length:         -1,
		minLength:      -1,
		maxLength:      -1,
		fractionDigits: 3,
	}
	assert.Empty(t, amount.check("12.345"))
	assert.Empty(t, amount.check(" 12 "))
	assert.NotEmpty(t, amount.check("12.3456"))
	assert.NotEmpty(t, amount.check("1e3"))

	assert.Empty(t, builtinType("positiveInteger").check("1"))
	assert.NotEmpty(t, builtinType("positiveInteger").check("0"))
	assert.Empty(t, builtinType("date").check("2022-06-17"))
	assert.NotEmpty(t, builtinType("boolean").check("yes"))
}
