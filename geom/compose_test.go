package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/smooth"
)

// composer is the slice of the parameterisation contract the tests drive.
type composer interface {
	Compose(t float64) error
	State() (mat.Matrix, error)
	Derivatives(onlyFree bool) ([]mat.Matrix, error)
	NumFree() int
	Values(onlyFree bool) []float64
	SetValues(p []float64) error
}

func newTestSmoother(t *testing.T) *smooth.GaussianSmoother {
	t.Helper()
	s, err := smooth.NewGaussianSmoother(0, 100, 5)
	require.NoError(t, err)
	return s
}

// scatterValues gives every free parameter a distinct smallish value so the
// composed state varies along the scan.
func scatterValues(t *testing.T, m composer, scale float64) {
	t.Helper()
	p := m.Values(true)
	for i := range p {
		p[i] = scale * math.Sin(float64(3*i+1))
	}
	require.NoError(t, m.SetValues(p))
}

// checkDerivatives compares every analytic derivative at coordinate tc
// against a central finite difference through Compose.
func checkDerivatives(t *testing.T, m composer, tc, eps, tol float64) {
	t.Helper()

	require.NoError(t, m.Compose(tc))
	analytic, err := m.Derivatives(true)
	require.NoError(t, err)

	// The derivative list is compose-path scratch: snapshot it before the
	// finite-difference recompositions overwrite it.
	snap := make([]*mat.Dense, len(analytic))
	for j, d := range analytic {
		snap[j] = mat.DenseCopyOf(d)
	}

	p := m.Values(true)
	for j := range p {
		orig := p[j]

		p[j] = orig + eps
		require.NoError(t, m.SetValues(p))
		require.NoError(t, m.Compose(tc))
		plusState, err := m.State()
		require.NoError(t, err)
		plus := mat.DenseCopyOf(plusState)

		p[j] = orig - eps
		require.NoError(t, m.SetValues(p))
		require.NoError(t, m.Compose(tc))
		minusState, err := m.State()
		require.NoError(t, err)

		var diff mat.Dense
		diff.Sub(plus, minusState)
		diff.Scale(1/(2*eps), &diff)

		assert.True(t, mat.EqualApprox(snap[j], &diff, tol),
			"derivative %d at t = %g:\nanalytic:\n%v\nfinite difference:\n%v",
			j, tc, mat.Formatted(snap[j]), mat.Formatted(&diff))

		p[j] = orig
	}
	require.NoError(t, m.SetValues(p))
}

func TestCrystalOrientationComposeIdentity(t *testing.T) {
	u0 := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	p, err := NewCrystalOrientation(nil, u0, newTestSmoother(t))
	require.NoError(t, err)

	// All angles are zero, so the composed state is U0 at any coordinate.
	for _, tc := range []float64{0, 33.3, 100} {
		require.NoError(t, p.Compose(tc))
		state, err := p.State()
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(u0, state, 1e-15))
	}
}

func TestCrystalOrientationDerivatives(t *testing.T) {
	u0 := RotationAbout(r3.Vec{X: 1, Y: 1, Z: 0.5}, 0.8)
	p, err := NewCrystalOrientation(nil, u0, newTestSmoother(t))
	require.NoError(t, err)
	require.Equal(t, 21, p.NumFree())

	scatterValues(t, p, 0.05)
	for _, tc := range []float64{0, 12.5, 50, 98} {
		checkDerivatives(t, p, tc, 1e-6, 1e-7)
	}

	// The composed state stays a rotation of U0.
	require.NoError(t, p.Compose(42))
	state, err := p.State()
	require.NoError(t, err)
	var g mat.Dense
	g.Mul(state, state.T())
	assert.True(t, mat.EqualApprox(&g, eye3(), 1e-12))
}

func TestUnitCellCompose(t *testing.T) {
	g0 := mat.NewSymDense(3, []float64{
		100, -2, 1,
		-2, 110, 3,
		1, 3, 90,
	})
	p, err := NewUnitCell(nil, g0, newTestSmoother(t))
	require.NoError(t, err)
	require.Equal(t, 42, p.NumFree())

	// With uniform checkpoints the composed tensor equals g0 everywhere.
	require.NoError(t, p.Compose(61.8))
	state, err := p.State()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(g0, state, 1e-12))

	// Scatter the checkpoints around the initial tensor elements.
	base := []float64{100, 110, 90, -2, 1, 3}
	pvals := p.Values(true)
	for i := range pvals {
		pvals[i] = base[i/7] + 0.5*math.Sin(float64(3*i+1))
	}
	require.NoError(t, p.SetValues(pvals))
	checkDerivatives(t, p, 27.2, 1e-5, 1e-8)

	// The state stays symmetric.
	require.NoError(t, p.Compose(27.2))
	state, err = p.State()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(state, state.T(), 1e-12))
}

func TestBeamDirectionCompose(t *testing.T) {
	s0 := r3.Vec{Z: -1.0 / 0.9795} // a typical s0 with |s0| = 1/lambda
	p, err := NewBeamDirection(nil, s0, newTestSmoother(t))
	require.NoError(t, err)
	require.Equal(t, 14, p.NumFree())

	// Zero angles reproduce s0.
	require.NoError(t, p.Compose(10))
	state, err := p.State()
	require.NoError(t, err)
	assert.InDelta(t, s0.Z, state.At(2, 0), 1e-15)

	scatterValues(t, p, 0.01)
	for _, tc := range []float64{0, 50, 100} {
		checkDerivatives(t, p, tc, 1e-6, 1e-7)
	}

	// Rotations preserve the beam vector norm.
	require.NoError(t, p.Compose(77))
	state, err = p.State()
	require.NoError(t, err)
	norm := math.Hypot(math.Hypot(state.At(0, 0), state.At(1, 0)), state.At(2, 0))
	assert.InDelta(t, r3.Norm(s0), norm, 1e-12)
}

func TestDetectorOriginCompose(t *testing.T) {
	origin := r3.Vec{X: -210, Y: 205, Z: -190}
	fast := r3.Vec{X: 1}
	slow := r3.Vec{Y: -1}
	p, err := NewDetectorOrigin(nil, origin, fast, slow, newTestSmoother(t))
	require.NoError(t, err)

	// Uniform shifts move the origin exactly along each axis.
	shift := make([]float64, 7)
	for i := range shift {
		shift[i] = 2.5
	}
	require.NoError(t, p.Sets()[0].SetValues(shift))
	require.NoError(t, p.Compose(31))
	state, err := p.State()
	require.NoError(t, err)
	assert.InDelta(t, origin.X+2.5, state.At(0, 0), 1e-12)
	assert.InDelta(t, origin.Y, state.At(1, 0), 1e-12)
	assert.InDelta(t, origin.Z, state.At(2, 0), 1e-12)

	scatterValues(t, p, 1.5)
	checkDerivatives(t, p, 66.6, 1e-4, 1e-9)

	// Fixing the normal translation removes its parameters from the free
	// derivative list.
	p.FixSet(2, true)
	require.Equal(t, 14, p.NumFree())
	require.NoError(t, p.Compose(31))
	ds, err := p.Derivatives(true)
	require.NoError(t, err)
	assert.Len(t, ds, 14)
	ds, err = p.Derivatives(false)
	require.NoError(t, err)
	assert.Len(t, ds, 21)
}

func TestComposeOrderingContract(t *testing.T) {
	u0 := eye3()
	p, err := NewCrystalOrientation(nil, u0, newTestSmoother(t))
	require.NoError(t, err)

	_, err = p.State()
	assert.ErrorIs(t, err, params.ErrNotComposed)
	_, err = p.Derivatives(true)
	assert.ErrorIs(t, err, params.ErrNotComposed)

	require.NoError(t, p.Compose(5))
	_, err = p.State()
	assert.NoError(t, err)
}
