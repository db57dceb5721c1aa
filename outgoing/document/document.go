// Package document writes NotifyAggregatedMeasureData documents in the CIM
// XML, CIM JSON and ebIX formats.
package document

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing"
)

const (
	createdLayout = "2006-01-02T15:04:05Z"
	periodLayout  = "2006-01-02T15:04Z"
)

// ErrNoSeries is returned when asked to write a document without series.
var ErrNoSeries = errors.New("document has no series")

// Writer renders a document in one wire format. The output is deterministic
// for a given header and series.
type Writer interface {
	Format() market.DocumentFormat
	Write(header outgoing.Header, series []outgoing.AcceptedEnergyResultTimeSeries) ([]byte, error)
}

// NewWriter returns the writer of the given format.
func NewWriter(format market.DocumentFormat) (Writer, error) {
	switch format {
	case market.DocumentFormatJSON:
		return NewCIMJSONWriter(), nil
	case market.DocumentFormatXML:
		return NewCIMXMLWriter(), nil
	case market.DocumentFormatEbix:
		return NewEbixWriter(), nil
	}
	return nil, errors.Errorf("no writer for format %v", format)
}

// coder looks up codes and keeps the first miss, so a document is assembled
// in one pass and checked once.
type coder struct {
	err error
}

func code[T comparable](c *coder, table market.CodeTable[T], v T) string {
	s, err := table.MustCode(v)
	if err != nil && c.err == nil {
		c.err = err
	}
	return s
}

func quantity(q *decimal.Decimal) string {
	return q.StringFixed(3)
}

func created(t time.Time) string { return t.UTC().Format(createdLayout) }

func period(t time.Time) string { return t.UTC().Format(periodLayout) }

// cimQuality returns the CIM quality code of a point. Measured is implied
// when the element is absent.
func cimQuality(c *coder, q market.Quality) (string, bool) {
	if q == market.QualityMeasured {
		return "", false
	}
	return code(c, market.CIMQualities, q), true
}

// missing reports whether ebIX marks the point as missing instead of giving
// its quality.
func missing(q market.Quality) bool {
	return q == market.QualityMissing || q == market.QualityNotAvailable
}
