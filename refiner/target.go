/*package refiner drives least-squares refinement of scan-varying model
parameterisations against observed values. It consumes only the exported
optimizer contract of the params package: the flattened free-parameter
vector, and composed states with per-parameter derivatives.
*/
package refiner

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewObservations is returned when a target holds fewer
	// observations than the model has free parameters.
	ErrTooFewObservations = errors.New(
		"fewer observations than free parameters")
)

// Model is the slice of the scan-varying parameterisation contract the
// refiner drives each iteration.
type Model interface {
	Compose(t float64) error
	State() (mat.Matrix, error)
	Derivatives(onlyFree bool) ([]mat.Matrix, error)
	NumFree() int
	Values(onlyFree bool) []float64
	SetValues(p []float64) error
	SetESDs(esds []float64) error
	Names(onlyFree bool) []string
}

// Extractor maps a composed model state to one scalar prediction. Deriv must
// apply the same linear functional to a state derivative, giving the
// derivative of the prediction.
type Extractor interface {
	Extract(state mat.Matrix) float64
	Deriv(dState mat.Matrix) float64
}

// Element is an Extractor reading a single element of the state.
type Element struct{ Row, Col int }

func (e Element) Extract(state mat.Matrix) float64 { return state.At(e.Row, e.Col) }
func (e Element) Deriv(dState mat.Matrix) float64  { return dState.At(e.Row, e.Col) }

// Observation is one measured scalar at scan coordinate T. Weight is an
// inverse-variance weight; zero or negative means unit weight.
type Observation struct {
	T      float64
	Value  float64
	Weight float64
	Of     Extractor
}

// Target binds a model to the observations it is refined against.
type Target struct {
	Model Model
	Obs   []Observation
}

// NumResiduals returns the number of observations.
func (tg *Target) NumResiduals() int { return len(tg.Obs) }

// Linearize composes the model at every observation coordinate and fills r
// with the weighted residuals (predicted minus observed) and jac with the
// weighted Jacobian of the residuals with respect to the free parameters.
// r must have one entry per observation and jac one row per observation and
// one column per free parameter.
func (tg *Target) Linearize(r []float64, jac *mat.Dense) error {
	n := tg.Model.NumFree()
	if len(r) != len(tg.Obs) {
		return fmt.Errorf("residual slice has length %d for %d observations",
			len(r), len(tg.Obs))
	}
	if rows, cols := jac.Dims(); rows != len(tg.Obs) || cols != n {
		return fmt.Errorf("jacobian is %dx%d, want %dx%d",
			rows, cols, len(tg.Obs), n)
	}

	for i, obs := range tg.Obs {
		if err := tg.Model.Compose(obs.T); err != nil {
			return err
		}
		state, err := tg.Model.State()
		if err != nil {
			return err
		}
		derivs, err := tg.Model.Derivatives(true)
		if err != nil {
			return err
		}

		sqrtw := 1.0
		if obs.Weight > 0 {
			sqrtw = math.Sqrt(obs.Weight)
		}
		r[i] = sqrtw * (obs.Of.Extract(state) - obs.Value)
		for j, d := range derivs {
			jac.Set(i, j, sqrtw*obs.Of.Deriv(d))
		}
	}
	return nil
}

// rawResiduals fills r with the unweighted residuals at the current
// parameter values, for outlier cutoffs expressed in observation units.
func (tg *Target) rawResiduals(r []float64) error {
	for i, obs := range tg.Obs {
		if err := tg.Model.Compose(obs.T); err != nil {
			return err
		}
		state, err := tg.Model.State()
		if err != nil {
			return err
		}
		r[i] = obs.Of.Extract(state) - obs.Value
	}
	return nil
}
