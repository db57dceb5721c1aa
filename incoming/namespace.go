package incoming

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

// cimSchemaKey derives the schema key from a CIM namespace such as
// "urn:ediel.org:measure:requestaggregatedmeasuredata:0:1", where the
// business process type is the fourth segment and the version the last two.
func cimSchemaKey(namespace string) (schema.Key, error) {
	parts := strings.Split(namespace, ":")
	if len(parts) < 5 {
		return schema.Key{}, errors.Errorf("namespace %q does not identify a business process and version", namespace)
	}
	version := parts[4]
	if len(parts) > 5 {
		version = parts[4] + "." + parts[5]
	}
	return schema.Key{
		Format:      market.DocumentFormatXML,
		ProcessType: parts[3],
		Version:     version,
	}, nil
}

// ebixSchemaKey derives the schema key from an ebIX namespace such as
// "un:unece:260:data:EEM-DK_RequestAggregatedMeteredData:v3".
func ebixSchemaKey(namespace string) (schema.Key, error) {
	parts := strings.Split(namespace, ":")
	if len(parts) < 6 {
		return schema.Key{}, errors.Errorf("namespace %q does not identify a business process and version", namespace)
	}
	tokens := strings.Split(parts[4], "-")
	return schema.Key{
		Format:      market.DocumentFormatEbix,
		ProcessType: tokens[len(tokens)-1],
		Version:     strings.TrimPrefix(parts[5], "v"),
	}, nil
}

// ebixProcessTypes names the ebIX document of each incoming document type.
var ebixProcessTypes = map[market.IncomingDocumentType]string{
	market.IncomingDocumentTypeRequestAggregatedMeasureData: "DK_RequestAggregatedMeteredData",
}

// expectedProcessType returns the process type segment a namespace must carry
// for documentType in the given format.
func expectedProcessType(format market.DocumentFormat, documentType market.IncomingDocumentType) string {
	if format == market.DocumentFormatEbix {
		return ebixProcessTypes[documentType]
	}
	return documentType.String()
}
