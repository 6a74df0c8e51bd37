package params

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/diffractio/scanfit/smooth"
)

// Composer is the contract concrete scan-varying parameterisations satisfy.
// Compose evaluates every smoothed parameter at the scan coordinate t and
// rebuilds the model state and its derivatives; State returns the state as
// last composed. Results are valid only for the t passed to the most recent
// Compose call, and a single instance must not be composed from more than one
// goroutine at a time (compose scratch is instance state).
type Composer interface {
	Compose(t float64) error
	State() (mat.Matrix, error)
}

// ValueWeight is the smoothed value of one parameter set at a scan
// coordinate, with the per-checkpoint weights that produced it. Dividing a
// checkpoint's weight by SumWeight gives the derivative of Value with
// respect to that checkpoint.
type ValueWeight struct {
	Value     float64
	Weights   []float64
	SumWeight float64
}

// ModelParameterisation aggregates an ordered collection of parameter sets
// sharing one smoother and presents them to a solver as a flat vector of
// free parameters. It holds the composed state and derivatives published by
// a concrete model type; concrete types embed it and implement Compose.
type ModelParameterisation struct {
	models       any
	initialState mat.Matrix
	sets         []*Set
	smoother     *smooth.GaussianSmoother
	setLen       int

	// Indices of the non-fixed sets, rebuilt only when fixed flags change.
	free []int

	composed bool
	state    mat.Matrix
	derivs   [][]mat.Matrix

	// Compose-path scratch, reused across calls.
	vwScratch []ValueWeight
}

var _ Composer = &ModelParameterisation{}

// NewModelParameterisation creates the aggregation layer over the given
// parameter sets. models and initialState are opaque references to the
// physical model objects being parameterised and their pre-refinement state;
// both are owned by the caller. Every set must hold exactly
// smoother.NumCheckpoints() values.
func NewModelParameterisation(
	models any, initialState mat.Matrix, sets []*Set,
	smoother *smooth.GaussianSmoother,
) (*ModelParameterisation, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no parameter sets", ErrConfiguration)
	}

	setLen := sets[0].Len()
	for _, set := range sets[1:] {
		if set.Len() != setLen {
			return nil, fmt.Errorf(
				"%w: parameter set %s holds %d checkpoints, but %s holds %d",
				ErrConfiguration, set.NameStem(), set.Len(),
				sets[0].NameStem(), setLen,
			)
		}
	}
	if smoother.NumCheckpoints() != setLen {
		return nil, fmt.Errorf(
			"%w: smoother has %d checkpoints, but the parameter sets "+
				"hold %d values", ErrConfiguration,
			smoother.NumCheckpoints(), setLen,
		)
	}

	mp := &ModelParameterisation{
		models:       models,
		initialState: initialState,
		sets:         append([]*Set{}, sets...),
		smoother:     smoother,
		setLen:       setLen,
		vwScratch:    make([]ValueWeight, len(sets)),
	}
	for i := range mp.vwScratch {
		mp.vwScratch[i].Weights = make([]float64, setLen)
	}
	mp.rebuildFreeIndex()
	return mp, nil
}

func (mp *ModelParameterisation) rebuildFreeIndex() {
	mp.free = mp.free[:0]
	for i, set := range mp.sets {
		if !set.Fixed() {
			mp.free = append(mp.free, i)
		}
	}
}

// NumFree returns the number of optimizer-visible parameters: one per
// checkpoint of every non-fixed set.
func (mp *ModelParameterisation) NumFree() int {
	return len(mp.free) * mp.setLen
}

// NumTotal returns the number of parameters including fixed sets.
func (mp *ModelParameterisation) NumTotal() int {
	return len(mp.sets) * mp.setLen
}

// NumSets returns the number of parameter sets.
func (mp *ModelParameterisation) NumSets() int { return len(mp.sets) }

// Sets returns the parameter sets in order. The returned slice is owned by
// the parameterisation.
func (mp *ModelParameterisation) Sets() []*Set { return mp.sets }

// Smoother returns the shared smoother.
func (mp *ModelParameterisation) Smoother() *smooth.GaussianSmoother {
	return mp.smoother
}

// InitialState returns the pre-refinement model state.
func (mp *ModelParameterisation) InitialState() mat.Matrix {
	return mp.initialState
}

// Models returns the physical model objects being parameterised.
func (mp *ModelParameterisation) Models() any { return mp.models }

// FixSet fixes or frees the parameter set at index i and rebuilds the
// free-parameter index.
func (mp *ModelParameterisation) FixSet(i int, fixed bool) {
	mp.sets[i].SetFixed(fixed)
	mp.rebuildFreeIndex()
}

// Values exports the checkpoint values of every set, concatenated in set
// order. With onlyFree, fixed sets are omitted; this is the optimizer-facing
// parameter vector.
func (mp *ModelParameterisation) Values(onlyFree bool) []float64 {
	out := make([]float64, 0, mp.NumTotal())
	for _, set := range mp.sets {
		if onlyFree && set.Fixed() {
			continue
		}
		out = append(out, set.Values()...)
	}
	return out
}

// Names exports the per-checkpoint parameter names with the same ordering
// and filtering as Values, so the two stay index-aligned.
func (mp *ModelParameterisation) Names(onlyFree bool) []string {
	out := make([]string, 0, mp.NumTotal())
	for _, set := range mp.sets {
		if onlyFree && set.Fixed() {
			continue
		}
		out = append(out, set.Names()...)
	}
	return out
}

// NameStems exports the name stem of each parameter set.
func (mp *ModelParameterisation) NameStems(onlyFree bool) []string {
	out := make([]string, 0, len(mp.sets))
	for _, set := range mp.sets {
		if onlyFree && set.Fixed() {
			continue
		}
		out = append(out, set.NameStem())
	}
	return out
}

// SetValues assigns a flat vector of free-parameter values, partitioned into
// contiguous chunks in set order. Fixed sets are skipped and keep their
// stored values. The composed state is not recomputed; call Compose before
// reading state or derivatives again.
func (mp *ModelParameterisation) SetValues(p []float64) error {
	if len(p) != mp.NumFree() {
		return fmt.Errorf(
			"%w: parameterisation has %d free parameters, given %d values",
			ErrLengthMismatch, mp.NumFree(), len(p),
		)
	}
	for n, i := range mp.free {
		if err := mp.sets[i].SetValues(p[n*mp.setLen : (n+1)*mp.setLen]); err != nil {
			return err
		}
	}
	return nil
}

// SetESDs assigns per-parameter uncertainties to the free sets, partitioned
// the same way as SetValues. Typically called once refinement has converged.
func (mp *ModelParameterisation) SetESDs(esds []float64) error {
	if len(esds) != mp.NumFree() {
		return fmt.Errorf(
			"%w: parameterisation has %d free parameters, given %d esds",
			ErrLengthMismatch, mp.NumFree(), len(esds),
		)
	}
	for n, i := range mp.free {
		if err := mp.sets[i].SetESDs(esds[n*mp.setLen : (n+1)*mp.setLen]); err != nil {
			return err
		}
	}
	return nil
}

// ValueWeightsAt returns the smoothed value, weight vector and weight sum of
// each parameter set at the scan coordinate t. The returned slice and the
// weight vectors inside it are scratch owned by the parameterisation and are
// valid until the next ValueWeightsAt or Compose call on this instance.
func (mp *ModelParameterisation) ValueWeightsAt(
	t float64, onlyFree bool,
) []ValueWeight {
	n := 0
	for _, set := range mp.sets {
		if onlyFree && set.Fixed() {
			continue
		}
		vw := &mp.vwScratch[n]
		vw.Value, vw.Weights, vw.SumWeight =
			mp.smoother.ValueWeight(t, set.Values(), vw.Weights)
		n++
	}
	return mp.vwScratch[:n]
}

// Compose on the base type reports that no concrete model implements it.
// Concrete parameterisations embed ModelParameterisation, evaluate their
// smoothed parameters at t, and publish the result through StoreComposed.
func (mp *ModelParameterisation) Compose(t float64) error {
	return fmt.Errorf("compose at %g: %w", t, ErrNotImplemented)
}

// StoreComposed records the state and per-checkpoint state derivatives
// computed by a concrete Compose implementation. derivs holds one row per
// parameter set with one entry per checkpoint.
func (mp *ModelParameterisation) StoreComposed(
	state mat.Matrix, derivs [][]mat.Matrix,
) error {
	if len(derivs) != len(mp.sets) {
		return fmt.Errorf(
			"%w: %d derivative rows for %d parameter sets",
			ErrLengthMismatch, len(derivs), len(mp.sets),
		)
	}
	for i := range derivs {
		if len(derivs[i]) != mp.setLen {
			return fmt.Errorf(
				"%w: derivative row %d has %d entries for %d checkpoints",
				ErrLengthMismatch, i, len(derivs[i]), mp.setLen,
			)
		}
	}
	mp.state = state
	mp.derivs = derivs
	mp.composed = true
	return nil
}

// State returns the model state as last composed.
func (mp *ModelParameterisation) State() (mat.Matrix, error) {
	if !mp.composed {
		return nil, fmt.Errorf("get state: %w", ErrNotComposed)
	}
	return mp.state, nil
}

// Derivatives returns the derivative of the composed state with respect to
// each parameter, flattened in the same order as Values. With onlyFree,
// entries for fixed sets are omitted; otherwise they are all-zero matrices
// of the matching shape.
func (mp *ModelParameterisation) Derivatives(onlyFree bool) ([]mat.Matrix, error) {
	if !mp.composed {
		return nil, fmt.Errorf("get derivatives: %w", ErrNotComposed)
	}

	out := make([]mat.Matrix, 0, mp.NumTotal())
	for i, set := range mp.sets {
		if set.Fixed() {
			if onlyFree {
				continue
			}
			for _, d := range mp.derivs[i] {
				r, c := d.Dims()
				out = append(out, mat.NewDense(r, c, nil))
			}
			continue
		}
		out = append(out, mp.derivs[i]...)
	}
	return out, nil
}
