package schema

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gridexchange/edi-gateway/market"
)

func TestProvider_EveryCatalogEntryCompiles(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	ctx := context.Background()
	for _, key := range p.Keys() {
		key := key
		t.Run(key.String(), func(t *testing.T) {
			var (
				found bool
				err   error
			)
			if key.Format == market.DocumentFormatJSON {
				_, found, err = p.JSON(ctx, key.ProcessType, key.Version)
			} else {
				_, found, err = p.XML(ctx, key)
			}
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestProvider_NotFound(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	ctx := context.Background()

	s, found, err := p.JSON(ctx, "RequestAggregatedMeasureData", "1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, s)

	x, found, err := p.XML(ctx, Key{market.DocumentFormatXML, "requestchangebillingmasterdata", "0.1"})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, x)

	x, found, err = p.XML(ctx, Key{market.DocumentFormatJSON, "requestaggregatedmeasuredata", "0"})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, x)
}

func TestProvider_CaseInsensitiveProcessType(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	ctx := context.Background()

	a, found, err := p.XML(ctx, Key{market.DocumentFormatEbix, "DK_RequestAggregatedMeteredData", "3"})
	require.NoError(t, err)
	require.True(t, found)
	b, found, err := p.XML(ctx, Key{market.DocumentFormatEbix, "dk_requestaggregatedmetereddata", "3"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, a, b)
	assert.Equal(t, "un:unece:260:data:EEM-DK_RequestAggregatedMeteredData:v3", a.TargetNamespace)
}

func TestProvider_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, found, err := NewProvider().JSON(ctx, "RequestAggregatedMeasureData", "0")
	assert.True(t, found)
	assert.Equal(t, context.Canceled, err)
}

func TestProvider_ConcurrentLoads(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	ctx := context.Background()
	results := make([]*gojsonschema.Schema, 8)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := p.JSON(ctx, "NotifyAggregatedMeasureData", "0")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range results[1:] {
		assert.Same(t, results[0], s)
	}
}

func TestProvider_Draft04IsEvaluatedAsDraft07(t *testing.T) {
	t.Parallel()

	// exclusiveMinimum is a boolean in draft-04 and a number in draft-07.
	p := &Provider{
		fs: fstest.MapFS{
			"s.json": {Data: []byte(`{"$schema": "http://json-schema.org/draft-04/schema#", "type": "number", "exclusiveMinimum": 5}`)},
		},
		files: map[Key]string{{market.DocumentFormatJSON, "sample", "0"}: "s.json"},
	}
	s, found, err := p.JSON(context.Background(), "Sample", "0")
	require.NoError(t, err)
	require.True(t, found)

	res, err := s.Validate(gojsonschema.NewStringLoader("5"))
	require.NoError(t, err)
	assert.False(t, res.Valid())

	res, err = s.Validate(gojsonschema.NewStringLoader("6"))
	require.NoError(t, err)
	assert.True(t, res.Valid())
}

func TestProvider_BrokenSchema(t *testing.T) {
	t.Parallel()

	p := &Provider{
		fs:    fstest.MapFS{"s.xsd": {Data: []byte("<xs:schema")}},
		files: map[Key]string{{market.DocumentFormatXML, "sample", "0.1"}: "s.xsd"},
	}
	_, found, err := p.XML(context.Background(), Key{market.DocumentFormatXML, "sample", "0.1"})
	assert.True(t, found)
	assert.Error(t, err)
}
