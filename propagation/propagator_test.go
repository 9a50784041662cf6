package propagation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelprop "go.opentelemetry.io/otel/propagation"

	"github.com/arloliu/causeway"
	"github.com/arloliu/causeway/propagation"
	"github.com/arloliu/causeway/types"
)

func TestPropagatorInjectSession(t *testing.T) {
	p := propagation.NewPropagator(nil)
	session := causeway.NewSession(types.SequenceWatermark(9), nil)
	ctx := causeway.ContextWithSession(t.Context(), session)

	carrier := otelprop.MapCarrier{}
	p.Inject(ctx, carrier)

	assert.Equal(t, "0000000000000009", carrier.Get(propagation.DefaultKey))
	assert.Equal(t, []string{propagation.DefaultKey}, p.Fields())
}

func TestPropagatorInjectWithoutSession(t *testing.T) {
	p := propagation.NewPropagator(nil)

	carrier := otelprop.MapCarrier{}
	p.Inject(t.Context(), carrier)
	assert.Empty(t, carrier.Keys())

	p.Inject(propagation.ContextWithToken(t.Context(), types.SequenceWatermark(4)), carrier)
	assert.Equal(t, "0000000000000004", carrier.Get(propagation.DefaultKey))
}

func TestPropagatorExtract(t *testing.T) {
	p := propagation.NewPropagator(propagation.NewBoundary(propagation.WithKey("token")))

	ctx := p.Extract(t.Context(), otelprop.MapCarrier{})
	_, ok := propagation.TokenFromContext(ctx)
	assert.False(t, ok)

	ctx = p.Extract(t.Context(), otelprop.MapCarrier{"token": "00000000000000ff"})
	w, ok := propagation.TokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, types.SequenceWatermark(255), w)

	ctx = p.Extract(context.Background(), otelprop.MapCarrier{"token": "bogus"})
	w, ok = propagation.TokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, causeway.Unconditional, w)
}

func TestPropagatorNilCarrier(t *testing.T) {
	p := propagation.NewPropagator(nil)
	ctx := causeway.ContextWithSession(t.Context(), causeway.NewSession(types.SequenceWatermark(3), nil))

	var got context.Context
	require.NotPanics(t, func() { got = p.Extract(ctx, nil) })
	assert.Equal(t, ctx, got)
	_, ok := propagation.TokenFromContext(got)
	assert.False(t, ok)

	require.NotPanics(t, func() { p.Inject(ctx, nil) })
}

func TestPropagatorComposite(t *testing.T) {
	composite := otelprop.NewCompositeTextMapPropagator(
		otelprop.TraceContext{},
		propagation.NewPropagator(nil),
	)

	in := otelprop.MapCarrier{propagation.DefaultKey: "0000000000000010"}
	ctx := composite.Extract(t.Context(), in)

	out := otelprop.MapCarrier{}
	composite.Inject(ctx, out)
	assert.Equal(t, "0000000000000010", out.Get(propagation.DefaultKey))
	assert.Contains(t, composite.Fields(), propagation.DefaultKey)
}
