package geom

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/smooth"
)

// DetectorOrigin parameterises a scan-varying detector origin by three
// translations along the detector's fast, slow and normal axes. The composed
// state is the 3-vector o(t) = o0 + dx(t) fast + dy(t) slow + dn(t) normal.
// The state is linear in the parameters, so the derivatives are the weighted
// axis vectors.
type DetectorOrigin struct {
	*params.ModelParameterisation

	o0   r3.Vec
	axes [3]r3.Vec

	state  *mat.VecDense
	derivs [][]mat.Matrix
}

// NewDetectorOrigin parameterises the origin of detector (opaque to this
// package). fast and slow are the in-plane detector axes; the third
// translation axis is their normal. All three translation sets start at
// zero.
func NewDetectorOrigin(
	detector any, origin, fast, slow r3.Vec, smoother *smooth.GaussianSmoother,
) (*DetectorOrigin, error) {
	if r3.Norm(fast) == 0 || r3.Norm(slow) == 0 {
		return nil, fmt.Errorf(
			"%w: detector axes must be nonzero", params.ErrConfiguration,
		)
	}

	axes := [3]r3.Vec{
		r3.Unit(fast),
		r3.Unit(slow),
		r3.Unit(r3.Cross(fast, slow)),
	}

	n := smoother.NumCheckpoints()
	sets := make([]*params.Set, 3)
	for i, stem := range []string{"dx", "dy", "dn"} {
		set, err := params.NewSet(0, n, axes[i], params.KindLength, stem)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	o0Vec := mat.NewVecDense(3, []float64{origin.X, origin.Y, origin.Z})
	base, err := params.NewModelParameterisation(detector, o0Vec, sets, smoother)
	if err != nil {
		return nil, err
	}

	p := &DetectorOrigin{
		ModelParameterisation: base,
		o0:                    origin,
		axes:                  axes,
		state:                 mat.NewVecDense(3, nil),
	}
	p.derivs = make([][]mat.Matrix, 3)
	for i := range p.derivs {
		p.derivs[i] = make([]mat.Matrix, n)
		for k := range p.derivs[i] {
			p.derivs[i][k] = mat.NewVecDense(3, nil)
		}
	}
	return p, nil
}

// Compose evaluates the three smoothed translations at t and rebuilds the
// origin and its derivatives.
func (p *DetectorOrigin) Compose(t float64) error {
	vw := p.ValueWeightsAt(t, false)

	o := p.o0
	for i := range p.axes {
		o = r3.Add(o, r3.Scale(vw[i].Value, p.axes[i]))
	}
	p.state.SetVec(0, o.X)
	p.state.SetVec(1, o.Y)
	p.state.SetVec(2, o.Z)

	for i := range p.derivs {
		axis := mat.NewVecDense(3, []float64{
			p.axes[i].X, p.axes[i].Y, p.axes[i].Z,
		})
		for k, d := range p.derivs[i] {
			factor := 0.0
			if vw[i].SumWeight > 0 {
				factor = vw[i].Weights[k] / vw[i].SumWeight
			}
			d.(*mat.VecDense).ScaleVec(factor, axis)
		}
	}

	return p.StoreComposed(p.state, p.derivs)
}
