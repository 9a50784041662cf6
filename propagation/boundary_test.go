package propagation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	otelprop "go.opentelemetry.io/otel/propagation"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/propagation"
	"github.com/arloliu/causeway/test/testutil"
	"github.com/arloliu/causeway/types"
)

func TestBoundaryImport(t *testing.T) {
	tests := []struct {
		name      string
		carrier   otelprop.MapCarrier
		want      causeway.Watermark
		malformed int64
	}{
		{name: "missing", carrier: otelprop.MapCarrier{}, want: causeway.Unconditional},
		{name: "empty", carrier: otelprop.MapCarrier{"x-session-token": ""}, want: causeway.Unconditional},
		{name: "sequence", carrier: otelprop.MapCarrier{"x-session-token": "000000000000002a"}, want: types.SequenceWatermark(42)},
		{name: "first primary", carrier: otelprop.MapCarrier{"x-session-token": "first-primary"}, want: causeway.FirstPrimary},
		{name: "unconditional", carrier: otelprop.MapCarrier{"x-session-token": "first-unconditional"}, want: causeway.Unconditional},
		{name: "malformed", carrier: otelprop.MapCarrier{"x-session-token": "not-a-token"}, want: causeway.Unconditional, malformed: 1},
		{name: "uppercase hex", carrier: otelprop.MapCarrier{"x-session-token": "000000000000002A"}, want: causeway.Unconditional, malformed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := testutil.NewTestMetricsCollector()
			boundary := propagation.NewBoundary(propagation.WithMetrics(collector))

			assert.Equal(t, tt.want, boundary.Import(tt.carrier))

			malformed, _, _ := collector.GetTokenCounts()
			assert.Equal(t, tt.malformed, malformed)
		})
	}
}

func TestBoundaryImportNilCarrier(t *testing.T) {
	assert.Equal(t, causeway.Unconditional, propagation.NewBoundary().Import(nil))
}

func TestBoundaryRoundTrip(t *testing.T) {
	boundary := propagation.NewBoundary()

	for _, w := range []causeway.Watermark{
		causeway.Unconditional,
		causeway.FirstPrimary,
		types.SequenceWatermark(0),
		types.SequenceWatermark(1),
		types.SequenceWatermark(1 << 40),
	} {
		carrier := otelprop.MapCarrier{}
		boundary.Export(carrier, w)
		assert.Equal(t, w, boundary.Import(carrier))
	}
}

func TestBoundaryHeaderCarrier(t *testing.T) {
	boundary := propagation.NewBoundary(propagation.WithKey("x-d1-token"))
	assert.Equal(t, "x-d1-token", boundary.Key())

	header := http.Header{}
	boundary.Export(otelprop.HeaderCarrier(header), types.SequenceWatermark(7))

	assert.Equal(t, "0000000000000007", header.Get("X-D1-Token"))
	assert.Equal(t, types.SequenceWatermark(7), boundary.Import(otelprop.HeaderCarrier(header)))
}

func TestBoundaryExportEmpty(t *testing.T) {
	carrier := otelprop.MapCarrier{}
	propagation.NewBoundary().Export(carrier, "")
	assert.Empty(t, carrier.Keys())
}

func TestBoundaryDefaults(t *testing.T) {
	boundary := propagation.NewBoundary(propagation.WithKey(""), propagation.WithOrdering(nil))
	assert.Equal(t, propagation.DefaultKey, boundary.Key())
	assert.NotNil(t, boundary.Ordering())
}
