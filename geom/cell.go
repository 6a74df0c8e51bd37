package geom

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/smooth"
)

// cellStems names the six independent elements of the metric tensor.
var cellStems = []string{"g11", "g22", "g33", "g12", "g13", "g23"}

// cellBasis holds the symmetric basis matrix each metric parameter scales:
// G(t) = sum_i gi(t) Ei.
var cellBasis = []*mat.SymDense{
	symBasis(0, 0), symBasis(1, 1), symBasis(2, 2),
	symBasis(0, 1), symBasis(0, 2), symBasis(1, 2),
}

func symBasis(i, j int) *mat.SymDense {
	e := mat.NewSymDense(3, nil)
	e.SetSym(i, j, 1)
	return e
}

// UnitCell parameterises a scan-varying unit cell through the six elements
// of its metric tensor. The composed state is the symmetric 3x3 tensor
// rebuilt from the smoothed elements; the state is linear in the parameters,
// so each derivative is a weighted basis matrix.
type UnitCell struct {
	*params.ModelParameterisation

	state  *mat.Dense
	derivs [][]mat.Matrix
}

// NewUnitCell parameterises the metric tensor of cell (opaque to this
// package), starting every checkpoint of each element set at the
// corresponding element of g0.
func NewUnitCell(
	cell any, g0 *mat.SymDense, smoother *smooth.GaussianSmoother,
) (*UnitCell, error) {
	if n, _ := g0.Dims(); n != 3 {
		return nil, fmt.Errorf(
			"%w: metric tensor is %dx%d, want 3x3",
			params.ErrConfiguration, n, n,
		)
	}

	initial := []float64{
		g0.At(0, 0), g0.At(1, 1), g0.At(2, 2),
		g0.At(0, 1), g0.At(0, 2), g0.At(1, 2),
	}

	n := smoother.NumCheckpoints()
	sets := make([]*params.Set, len(cellStems))
	for i, stem := range cellStems {
		set, err := params.NewSet(initial[i], n, r3.Vec{}, "metric element", stem)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	var g0Dense mat.Dense
	g0Dense.CloneFrom(g0)
	base, err := params.NewModelParameterisation(cell, &g0Dense, sets, smoother)
	if err != nil {
		return nil, err
	}

	p := &UnitCell{
		ModelParameterisation: base,
		state:                 mat.NewDense(3, 3, nil),
	}
	p.derivs = make([][]mat.Matrix, len(cellStems))
	for i := range p.derivs {
		p.derivs[i] = make([]mat.Matrix, n)
		for k := range p.derivs[i] {
			p.derivs[i][k] = mat.NewDense(3, 3, nil)
		}
	}
	return p, nil
}

// Compose rebuilds the metric tensor and its derivatives at scan
// coordinate t.
func (p *UnitCell) Compose(t float64) error {
	vw := p.ValueWeightsAt(t, false)

	g11, g22, g33 := vw[0].Value, vw[1].Value, vw[2].Value
	g12, g13, g23 := vw[3].Value, vw[4].Value, vw[5].Value
	p.state.SetRow(0, []float64{g11, g12, g13})
	p.state.SetRow(1, []float64{g12, g22, g23})
	p.state.SetRow(2, []float64{g13, g23, g33})

	for i := range p.derivs {
		for k, d := range p.derivs[i] {
			factor := 0.0
			if vw[i].SumWeight > 0 {
				factor = vw[i].Weights[k] / vw[i].SumWeight
			}
			d.(*mat.Dense).Scale(factor, cellBasis[i])
		}
	}

	return p.StoreComposed(p.state, p.derivs)
}
