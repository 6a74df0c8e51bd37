package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/smooth"
)

// BeamDirection parameterises a scan-varying beam direction by two small
// rotation angles about axes orthogonal to the initial beam vector s0. The
// composed state is the 3-vector s(t) = R2(mu2) R1(mu1) s0.
type BeamDirection struct {
	*params.ModelParameterisation

	s0   *mat.VecDense
	axes [2]r3.Vec

	rot, skew [2]*mat.Dense
	state     *mat.VecDense
	tmp       *mat.VecDense
	derivs    [][]mat.Matrix
}

// NewBeamDirection parameterises the direction of beam (opaque to this
// package) around the initial beam vector s0, which must be nonzero. Both
// angle sets start at zero.
func NewBeamDirection(
	beam any, s0 r3.Vec, smoother *smooth.GaussianSmoother,
) (*BeamDirection, error) {
	if r3.Norm(s0) == 0 {
		return nil, fmt.Errorf(
			"%w: beam vector must be nonzero", params.ErrConfiguration,
		)
	}

	axes := beamAxes(s0)
	n := smoother.NumCheckpoints()
	sets := make([]*params.Set, 2)
	for i, stem := range []string{"mu1", "mu2"} {
		set, err := params.NewSet(0, n, axes[i], params.KindAngle, stem)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	s0Vec := mat.NewVecDense(3, []float64{s0.X, s0.Y, s0.Z})
	base, err := params.NewModelParameterisation(beam, s0Vec, sets, smoother)
	if err != nil {
		return nil, err
	}

	p := &BeamDirection{
		ModelParameterisation: base,
		s0:                    s0Vec,
		axes:                  axes,
		state:                 mat.NewVecDense(3, nil),
		tmp:                   mat.NewVecDense(3, nil),
	}
	for i := range p.rot {
		p.rot[i] = mat.NewDense(3, 3, nil)
		p.skew[i] = mat.NewDense(3, 3, nil)
		skewMatrixInto(p.skew[i], axes[i])
	}
	p.derivs = make([][]mat.Matrix, 2)
	for i := range p.derivs {
		p.derivs[i] = make([]mat.Matrix, n)
		for k := range p.derivs[i] {
			p.derivs[i][k] = mat.NewVecDense(3, nil)
		}
	}
	return p, nil
}

// beamAxes picks two unit axes orthogonal to s0 and to each other.
func beamAxes(s0 r3.Vec) [2]r3.Vec {
	// Cross s0 with whichever lab axis is least aligned with it.
	ref := r3.Vec{X: 1}
	if math.Abs(s0.X) >= math.Abs(s0.Y) && math.Abs(s0.X) >= math.Abs(s0.Z) {
		ref = r3.Vec{Y: 1}
	}
	e1 := r3.Unit(r3.Cross(s0, ref))
	e2 := r3.Unit(r3.Cross(s0, e1))
	return [2]r3.Vec{e1, e2}
}

// Compose evaluates the two smoothed angles at t and rebuilds s(t) and its
// derivatives with respect to every checkpoint parameter.
func (p *BeamDirection) Compose(t float64) error {
	vw := p.ValueWeightsAt(t, false)

	for i := range p.rot {
		rotationAboutInto(p.rot[i], p.axes[i], vw[i].Value)
	}

	// s = R2 R1 s0.
	p.tmp.MulVec(p.rot[0], p.s0)
	p.state.MulVec(p.rot[1], p.tmp)

	// ds/dmu1 = R2 K1 R1 s0; ds/dmu2 = K2 R2 R1 s0.
	var scratch, d1, d2 mat.VecDense
	scratch.MulVec(p.skew[0], p.tmp)
	d1.MulVec(p.rot[1], &scratch)
	d2.MulVec(p.skew[1], p.state)

	grads := [2]*mat.VecDense{&d1, &d2}
	for i := range p.derivs {
		for k, d := range p.derivs[i] {
			factor := 0.0
			if vw[i].SumWeight > 0 {
				factor = vw[i].Weights[k] / vw[i].SumWeight
			}
			d.(*mat.VecDense).ScaleVec(factor, grads[i])
		}
	}

	return p.StoreComposed(p.state, p.derivs)
}
