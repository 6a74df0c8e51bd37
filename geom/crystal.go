package geom

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/smooth"
)

// CrystalOrientation parameterises a scan-varying crystal orientation matrix
// by three small rotation angles about the lab axes. The composed state at
// scan coordinate t is U(t) = R3(phi3) R2(phi2) R1(phi1) U0.
type CrystalOrientation struct {
	*params.ModelParameterisation

	axes [3]r3.Vec

	// Compose scratch, reused across calls.
	rot, skew, acc, tmp [3]*mat.Dense
	state               *mat.Dense
	derivs              [][]mat.Matrix
}

// NewCrystalOrientation parameterises the orientation of crystal (opaque to
// this package) around the initial orientation matrix u0. All three angle
// sets start at zero with one checkpoint per smoother checkpoint.
func NewCrystalOrientation(
	crystal any, u0 *mat.Dense, smoother *smooth.GaussianSmoother,
) (*CrystalOrientation, error) {
	if r, c := u0.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf(
			"%w: orientation matrix is %dx%d, want 3x3",
			params.ErrConfiguration, r, c,
		)
	}

	axes := [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	n := smoother.NumCheckpoints()
	sets := make([]*params.Set, 3)
	for i, stem := range []string{"phi1", "phi2", "phi3"} {
		set, err := params.NewSet(0, n, axes[i], params.KindAngle, stem)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	base, err := params.NewModelParameterisation(crystal, u0, sets, smoother)
	if err != nil {
		return nil, err
	}

	p := &CrystalOrientation{
		ModelParameterisation: base,
		axes:                  axes,
		state:                 mat.NewDense(3, 3, nil),
	}
	for i := range p.rot {
		p.rot[i] = mat.NewDense(3, 3, nil)
		p.skew[i] = mat.NewDense(3, 3, nil)
		p.acc[i] = mat.NewDense(3, 3, nil)
		p.tmp[i] = mat.NewDense(3, 3, nil)
		skewMatrixInto(p.skew[i], axes[i])
	}
	p.derivs = make([][]mat.Matrix, 3)
	for i := range p.derivs {
		p.derivs[i] = make([]mat.Matrix, n)
		for k := range p.derivs[i] {
			p.derivs[i][k] = mat.NewDense(3, 3, nil)
		}
	}
	return p, nil
}

// Compose evaluates the three smoothed angles at t and rebuilds U(t) and the
// derivative of U with respect to every checkpoint parameter.
func (p *CrystalOrientation) Compose(t float64) error {
	vw := p.ValueWeightsAt(t, false)

	for i := range p.rot {
		rotationAboutInto(p.rot[i], p.axes[i], vw[i].Value)
	}

	// U = R3 R2 R1 U0.
	u0 := p.InitialState()
	p.state.Mul(p.rot[0], u0)
	p.state.Mul(p.rot[1], p.state)
	p.state.Mul(p.rot[2], p.state)

	// dU/dphi1 = R3 R2 K1 R1 U0, and cyclically for phi2, phi3, where Ki is
	// the skew matrix of axis i.
	p.acc[0].Mul(p.skew[0], p.rot[0])
	p.acc[0].Mul(p.rot[1], p.acc[0])
	p.acc[0].Mul(p.rot[2], p.acc[0])
	p.acc[0].Mul(p.acc[0], u0)

	p.tmp[1].Mul(p.rot[1], p.rot[0])
	p.acc[1].Mul(p.skew[1], p.tmp[1])
	p.acc[1].Mul(p.rot[2], p.acc[1])
	p.acc[1].Mul(p.acc[1], u0)

	p.tmp[2].Mul(p.rot[2], p.tmp[1])
	p.acc[2].Mul(p.skew[2], p.tmp[2])
	p.acc[2].Mul(p.acc[2], u0)

	// Chain rule through the smoothing: the smoothed angle is a normalized
	// weighted sum of checkpoints, so d(angle)/d(checkpoint k) is
	// weight[k] / sumWeight.
	for i := range p.derivs {
		for k, d := range p.derivs[i] {
			factor := 0.0
			if vw[i].SumWeight > 0 {
				factor = vw[i].Weights[k] / vw[i].SumWeight
			}
			d.(*mat.Dense).Scale(factor, p.acc[i])
		}
	}

	return p.StoreComposed(p.state, p.derivs)
}
