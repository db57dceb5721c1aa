package incoming

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
)

// MessageParser parses one wire format.
//
// Problems with the document itself are reported as validation errors, in
// which case the message is nil. The error return is reserved for failures
// that are not the sender's fault, e.g. a schema that does not compile or a
// canceled context.
type MessageParser interface {
	Parse(ctx context.Context, r io.ReadSeeker, documentType market.IncomingDocumentType) (*Message, []ValidationError, error)
}

// Result is the outcome of parsing a document. Exactly one of Message and
// Errors is set.
type Result struct {
	Message *Message
	Errors  []ValidationError
}

// Success reports whether the document parsed without validation errors.
func (r Result) Success() bool {
	return r.Message != nil && len(r.Errors) == 0
}

// Parsers dispatches a document to the parser of its format.
type Parsers struct {
	parsers map[market.DocumentFormat]MessageParser
}

// NewParsers returns the parsers of every supported format backed by the
// given schemas.
func NewParsers(provider *schema.Provider) *Parsers {
	return &Parsers{
		parsers: map[market.DocumentFormat]MessageParser{
			market.DocumentFormatJSON: NewJSONParser(provider),
			market.DocumentFormatXML:  NewCIMXMLParser(provider),
			market.DocumentFormatEbix: NewEbixXMLParser(provider),
		},
	}
}

// Parse reads the document in r using the parser registered for format.
func (p *Parsers) Parse(ctx context.Context, r io.ReadSeeker, format market.DocumentFormat, documentType market.IncomingDocumentType) (Result, error) {
	parser, ok := p.parsers[format]
	if !ok {
		return Result{}, errors.Errorf("no parser registered for format %s", format)
	}
	msg, verrs, err := parser.Parse(ctx, r, documentType)
	if err != nil {
		return Result{}, errors.Wrapf(err, "parsing %s %s", format, documentType)
	}
	if len(verrs) > 0 {
		return Result{Errors: verrs}, nil
	}
	return Result{Message: msg}, nil
}

// collector accumulates the validation errors found while parsing a
// document. Parsers keep going after the first error so the sender gets
// every problem at once.
type collector struct {
	errs []ValidationError
}

func (c *collector) add(e ValidationError) {
	c.errs = append(c.errs, e)
}

func (c *collector) structural(target, message string) {
	c.add(InvalidMessageStructure(target, message))
}

func (c *collector) failed() bool {
	return len(c.errs) > 0
}

// result returns msg, or the accumulated errors if there are any.
func (c *collector) result(msg *Message) (*Message, []ValidationError, error) {
	if c.failed() {
		return nil, c.errs, nil
	}
	return msg, nil, nil
}
