// Package schema provides the versioned document schemas used to validate
// incoming and outgoing market documents.
package schema

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema/xsd"
)

//go:embed schemas
var embedded embed.FS

// The JSON schemas are authored as draft-04 documents and evaluated as
// draft-07.
var (
	draft04 = []byte("http://json-schema.org/draft-04/schema#")
	draft07 = []byte("http://json-schema.org/draft-07/schema#")
)

// Key identifies a schema. ProcessType is the business process segment of the
// document namespace (or the document name for JSON) and is compared
// case-insensitively.
type Key struct {
	Format      market.DocumentFormat
	ProcessType string
	Version     string
}

func (k Key) String() string {
	return k.Format.String() + ":" + k.ProcessType + ":" + k.Version
}

func (k Key) normalize() Key {
	k.ProcessType = strings.ToLower(k.ProcessType)
	return k
}

// catalog maps every supported schema to its embedded file.
var catalog = map[Key]string{
	{market.DocumentFormatJSON, "requestaggregatedmeasuredata", "0"}: "schemas/json/request-aggregated-measure-data-0.schema.json",
	{market.DocumentFormatJSON, "requestwholesalesettlement", "0"}:   "schemas/json/request-wholesale-settlement-0.schema.json",
	{market.DocumentFormatJSON, "notifyaggregatedmeasuredata", "0"}:  "schemas/json/notify-aggregated-measure-data-0.schema.json",

	{market.DocumentFormatXML, "requestaggregatedmeasuredata", "0.1"}: "schemas/cim/urn-ediel-org-measure-requestaggregatedmeasuredata-0-1.xsd",
	{market.DocumentFormatXML, "requestwholesalesettlement", "0.1"}:   "schemas/cim/urn-ediel-org-measure-requestwholesalesettlement-0-1.xsd",
	{market.DocumentFormatXML, "notifyaggregatedmeasuredata", "0.1"}:  "schemas/cim/urn-ediel-org-measure-notifyaggregatedmeasuredata-0-1.xsd",

	{market.DocumentFormatEbix, "dk_requestaggregatedmetereddata", "3"}:    "schemas/ebix/ebIX_DK_RequestAggregatedMeteredData-3.xsd",
	{market.DocumentFormatEbix, "dk_aggregatedmetereddatatimeseries", "3"}: "schemas/ebix/ebIX_DK_AggregatedMeteredDataTimeSeries-3.xsd",
}

// Provider loads schemas from the embedded catalog and caches them once
// compiled. It is safe for concurrent use.
type Provider struct {
	fs    fs.FS
	files map[Key]string
	cache sync.Map
}

// NewProvider returns a Provider backed by the embedded schemas.
func NewProvider() *Provider {
	return &Provider{fs: embedded, files: catalog}
}

// JSON returns the JSON schema of a document type, e.g.
// "RequestAggregatedMeasureData". found is false when the document type or
// version is unknown.
func (p *Provider) JSON(ctx context.Context, documentType, version string) (*gojsonschema.Schema, bool, error) {
	v, found, err := p.load(ctx, Key{market.DocumentFormatJSON, documentType, version}, compileJSON)
	if !found || err != nil {
		return nil, found, err
	}
	return v.(*gojsonschema.Schema), true, nil
}

// XML returns the XML schema identified by key. The key format must be XML or
// Ebix. found is false when the key is unknown.
func (p *Provider) XML(ctx context.Context, key Key) (*xsd.Schema, bool, error) {
	if key.Format == market.DocumentFormatJSON {
		return nil, false, nil
	}
	v, found, err := p.load(ctx, key, compileXML)
	if !found || err != nil {
		return nil, found, err
	}
	return v.(*xsd.Schema), true, nil
}

// Keys lists the known schemas.
func (p *Provider) Keys() []Key {
	keys := make([]Key, 0, len(p.files))
	for k := range p.files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

type compileFunc func(blob []byte) (interface{}, error)

// load compiles the schema on first use. Concurrent first uses may compile
// the same schema twice; the first stored result wins.
func (p *Provider) load(ctx context.Context, key Key, compile compileFunc) (interface{}, bool, error) {
	key = key.normalize()
	if v, ok := p.cache.Load(key); ok {
		return v, true, nil
	}
	name, ok := p.files[key]
	if !ok {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, true, err
	}
	blob, err := fs.ReadFile(p.fs, name)
	if err != nil {
		return nil, true, errors.Wrapf(err, "reading schema %s", key)
	}
	v, err := compile(blob)
	if err != nil {
		return nil, true, errors.Wrapf(err, "compiling schema %s", key)
	}
	v, _ = p.cache.LoadOrStore(key, v)
	return v, true, nil
}

func compileJSON(blob []byte) (interface{}, error) {
	blob = bytes.Replace(blob, draft04, draft07, 1)
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(blob))
}

func compileXML(blob []byte) (interface{}, error) {
	return xsd.Compile(bytes.NewReader(blob))
}
