package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/smooth"
)

// newTestParameterisation builds a three-set parameterisation over a
// (0, 10) scan with 5 intervals, so every set holds 7 checkpoints.
func newTestParameterisation(t *testing.T) *ModelParameterisation {
	t.Helper()

	smoother, err := smooth.NewGaussianSmoother(0, 10, 5)
	require.NoError(t, err)

	sets := make([]*Set, 3)
	for i, stem := range []string{"phi1", "phi2", "phi3"} {
		sets[i], err = NewSet(float64(i), 7, r3.Vec{}, KindAngle, stem)
		require.NoError(t, err)
	}

	initial := mat.NewDense(3, 3, nil)
	mp, err := NewModelParameterisation(nil, initial, sets, smoother)
	require.NoError(t, err)
	return mp
}

func TestNewModelParameterisationErrors(t *testing.T) {
	smoother, err := smooth.NewGaussianSmoother(0, 10, 5)
	require.NoError(t, err)

	_, err = NewModelParameterisation(nil, nil, nil, smoother)
	assert.ErrorIs(t, err, ErrConfiguration)

	// Sets of unequal length.
	a, err := NewSet(0, 7, r3.Vec{}, KindAngle, "a")
	require.NoError(t, err)
	b, err := NewSet(0, 5, r3.Vec{}, KindAngle, "b")
	require.NoError(t, err)
	_, err = NewModelParameterisation(nil, nil, []*Set{a, b}, smoother)
	assert.ErrorIs(t, err, ErrConfiguration)

	// Set length differs from the smoother's checkpoint count.
	_, err = NewModelParameterisation(nil, nil, []*Set{b}, smoother)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNumFree(t *testing.T) {
	mp := newTestParameterisation(t)

	assert.Equal(t, 21, mp.NumTotal())
	assert.Equal(t, 21, mp.NumFree())

	mp.FixSet(1, true)
	assert.Equal(t, 14, mp.NumFree())
	assert.Equal(t, 21, mp.NumTotal())

	mp.FixSet(0, true)
	mp.FixSet(2, true)
	assert.Equal(t, 0, mp.NumFree())
	assert.Empty(t, mp.Values(true))
	assert.Empty(t, mp.Names(true))

	mp.FixSet(1, false)
	assert.Equal(t, 7, mp.NumFree())
}

func TestValuesNamesAligned(t *testing.T) {
	mp := newTestParameterisation(t)
	mp.FixSet(1, true)

	values := mp.Values(true)
	names := mp.Names(true)
	require.Len(t, values, 14)
	require.Len(t, names, 14)

	// Set phi2 (values all 1) was fixed, so the free vector holds the
	// phi1 sets then the phi3 sets, index-aligned with their names.
	for i := 0; i < 7; i++ {
		assert.Equal(t, 0.0, values[i])
		assert.Equal(t, sampleName("phi1", i), names[i])
		assert.Equal(t, 2.0, values[i+7])
		assert.Equal(t, sampleName("phi3", i), names[i+7])
	}

	all := mp.Values(false)
	require.Len(t, all, 21)
	assert.Equal(t, 1.0, all[7])
	assert.Equal(t, []string{"phi1", "phi2", "phi3"}, mp.NameStems(false))
	assert.Equal(t, []string{"phi1", "phi3"}, mp.NameStems(true))
}

func TestSetValuesRoundTrip(t *testing.T) {
	mp := newTestParameterisation(t)
	mp.FixSet(2, true)

	before := mp.Values(true)
	require.NoError(t, mp.SetValues(before))
	assert.Equal(t, before, mp.Values(true))

	// Fixed sets keep their stored values.
	p := make([]float64, mp.NumFree())
	for i := range p {
		p[i] = float64(i) * 0.5
	}
	require.NoError(t, mp.SetValues(p))
	assert.Equal(t, p, mp.Values(true))
	for _, v := range mp.Sets()[2].Values() {
		assert.Equal(t, 2.0, v)
	}

	assert.ErrorIs(t, mp.SetValues(make([]float64, 21)), ErrLengthMismatch)
}

func TestSetESDs(t *testing.T) {
	mp := newTestParameterisation(t)
	mp.FixSet(0, true)

	esds := make([]float64, mp.NumFree())
	for i := range esds {
		esds[i] = 0.01 * float64(i+1)
	}
	require.NoError(t, mp.SetESDs(esds))
	assert.Equal(t, esds[:7], mp.Sets()[1].ESDs())
	assert.Equal(t, esds[7:], mp.Sets()[2].ESDs())

	assert.ErrorIs(t, mp.SetESDs([]float64{1}), ErrLengthMismatch)
}

func TestValueWeightsAt(t *testing.T) {
	mp := newTestParameterisation(t)
	vals := make([]float64, 7)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	require.NoError(t, mp.Sets()[1].SetValues(vals))
	mp.FixSet(0, true)

	vws := mp.ValueWeightsAt(5, true)
	require.Len(t, vws, 2)

	// Must match a direct smoother query on the same set.
	value, weights, sumWeight := mp.Smoother().ValueWeight(5, vals)
	assert.Equal(t, value, vws[0].Value)
	assert.Equal(t, weights, vws[0].Weights)
	assert.Equal(t, sumWeight, vws[0].SumWeight)

	assert.Len(t, mp.ValueWeightsAt(5, false), 3)
}

func TestComposeNotImplementedOnBase(t *testing.T) {
	mp := newTestParameterisation(t)
	assert.ErrorIs(t, mp.Compose(1.0), ErrNotImplemented)
}

func TestStateBeforeCompose(t *testing.T) {
	mp := newTestParameterisation(t)

	_, err := mp.State()
	assert.ErrorIs(t, err, ErrNotComposed)
	_, err = mp.Derivatives(true)
	assert.ErrorIs(t, err, ErrNotComposed)
}

func TestStoreComposed(t *testing.T) {
	mp := newTestParameterisation(t)

	state := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	derivs := make([][]mat.Matrix, 3)
	for i := range derivs {
		derivs[i] = make([]mat.Matrix, 7)
		for k := range derivs[i] {
			d := mat.NewDense(3, 3, nil)
			d.Set(0, 0, float64(i*7+k))
			derivs[i][k] = d
		}
	}
	require.NoError(t, mp.StoreComposed(state, derivs))

	got, err := mp.State()
	require.NoError(t, err)
	assert.Equal(t, state, got)

	ds, err := mp.Derivatives(true)
	require.NoError(t, err)
	require.Len(t, ds, 21)
	assert.Equal(t, 20.0, ds[20].At(0, 0))

	// Fixed sets contribute zero matrices when not filtered out.
	mp.FixSet(1, true)
	ds, err = mp.Derivatives(false)
	require.NoError(t, err)
	require.Len(t, ds, 21)
	assert.Equal(t, 6.0, ds[6].At(0, 0))
	for k := 7; k < 14; k++ {
		assert.True(t, mat.Equal(ds[k], mat.NewDense(3, 3, nil)))
	}
	assert.Equal(t, 14.0, ds[14].At(0, 0))

	ds, err = mp.Derivatives(true)
	require.NoError(t, err)
	require.Len(t, ds, 14)
	assert.Equal(t, 14.0, ds[7].At(0, 0))

	// Mis-shapen derivative stores are rejected.
	assert.ErrorIs(t, mp.StoreComposed(state, derivs[:2]), ErrLengthMismatch)
	short := [][]mat.Matrix{derivs[0][:3], derivs[1], derivs[2]}
	assert.ErrorIs(t, mp.StoreComposed(state, short), ErrLengthMismatch)
}
